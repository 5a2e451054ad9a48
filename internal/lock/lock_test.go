package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireRecordsOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "work")

	l, err := Acquire(dir, "work")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	got := l.Owner()
	if got.PID != os.Getpid() || got.Session != "work" {
		t.Errorf("Owner() = %+v", got)
	}
	if time.Since(got.Since) > time.Minute {
		t.Errorf("Owner().Since = %v, want about now", got.Since)
	}

	held, ok := Holder(dir)
	if !ok {
		t.Fatal("Holder() found no holder while locked")
	}
	if held.PID != got.PID || held.Session != got.Session || !held.Since.Equal(got.Since) {
		t.Errorf("Holder() = %+v, want %+v", held, got)
	}
}

func TestDoubleAcquireFails(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir, "main")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l1.Release() }()

	_, err = Acquire(dir, "main")
	var held *LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("second Acquire() error = %v, want LockHeldError", err)
	}
	if held.Owner.PID != os.Getpid() || held.Owner.Session != "main" {
		t.Errorf("LockHeldError.Owner = %+v", held.Owner)
	}
}

func TestReleaseNilAndTwice(t *testing.T) {
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}

	dir := t.TempDir()
	l, err := Acquire(dir, "main")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("first Release() error = %v", err)
	}
	if err := l.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, fileName)); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Release: %v", err)
	}
	if _, ok := Holder(dir); ok {
		t.Error("Holder() reported a holder after Release")
	}
}

func TestHolderWithoutLockFile(t *testing.T) {
	if _, ok := Holder(t.TempDir()); ok {
		t.Error("Holder() reported a holder for an empty directory")
	}
}

func TestParseOwnerIgnoresUnknownLines(t *testing.T) {
	o := parseOwner("pid=42\nsession=work\nsince=2024-05-01T10:00:00Z\nhost=box\ngarbage\n")
	if o.PID != 42 || o.Session != "work" {
		t.Errorf("parseOwner() = %+v", o)
	}
	if want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC); !o.Since.Equal(want) {
		t.Errorf("Since = %v, want %v", o.Since, want)
	}
}
