package session

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidName is returned for names that cannot name a session directory.
var ErrInvalidName = errors.New("invalid session name")

// Session names double as directory names, and are often a hub user id such
// as "ana.silva" or "team_2". They start with a letter or digit.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ValidateName checks that name is usable as a session name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 lowercase letters, digits, '.', '_' or '-', starting with a letter or digit", ErrInvalidName, name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w %q: must not contain \"..\"", ErrInvalidName, name)
	}
	return nil
}
