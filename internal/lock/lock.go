package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// Owner describes the daemon holding a session lock, as written into the lock file.
type Owner struct {
	PID     int
	Session string
	Since   time.Time
}

// LockHeldError is returned when another daemon already serves the session.
type LockHeldError struct {
	Owner Owner
	Path  string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("session %q already served by PID %d (%s)", e.Owner.Session, e.Owner.PID, e.Path)
}

// Lock is an acquired session lock. It is held until Release or process exit.
type Lock struct {
	file  *os.File
	path  string
	owner Owner
}

// Acquire takes the exclusive lock of the session directory and records the
// calling process as its owner.
func Acquire(sessionDir, sessionName string) (*Lock, error) {
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(sessionDir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, &LockHeldError{Owner: readOwner(path), Path: path}
	}

	owner := Owner{PID: os.Getpid(), Session: sessionName, Since: time.Now().UTC().Truncate(time.Second)}
	if err := writeOwner(f, owner); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path, owner: owner}, nil
}

// Owner returns what this lock recorded about its holder.
func (l *Lock) Owner() Owner {
	return l.owner
}

// Release releases the lock. Safe to call on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Unlink first so a stale file never outlives the daemon.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Holder reports the owner of the lock in sessionDir. ok is false when no
// process holds it.
func Holder(sessionDir string) (owner Owner, ok bool) {
	path := filepath.Join(sessionDir, fileName)
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return Owner{}, false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		return Owner{}, false
	}
	return readOwner(path), true
}

func writeOwner(f *os.File, o Owner) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nsession=%s\nsince=%s\n", o.PID, o.Session, o.Since.Format(time.RFC3339))
	return err
}

func readOwner(path string) Owner {
	data, _ := os.ReadFile(path)
	return parseOwner(string(data))
}

func parseOwner(content string) Owner {
	var o Owner
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(value)
		case "session":
			o.Session = value
		case "since":
			o.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return o
}
