package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoUser is returned by operations that act as the current user while the
// session has none, such as before a usable access token is configured.
var ErrNoUser = errors.New("session has no signed-in user")

// Context identifies who the daemon is acting for. It is built once at
// startup and handed to every component that needs the current user.
type Context struct {
	Name   string
	UserID string
	Token  string
}

// FromToken builds a session context from an access token. The user id is
// the token's subject. The signature is not checked here; the hub verifies
// the token when the transport connects.
func FromToken(name, token string) (Context, error) {
	if token == "" {
		return Context{}, errors.New("access token is empty")
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Context{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.Subject == "" {
		return Context{}, errors.New("access token has no subject")
	}
	return Context{Name: name, UserID: claims.Subject, Token: token}, nil
}

// RequireUser returns the current user id, or ErrNoUser when nobody is signed in.
func (c Context) RequireUser() (string, error) {
	if c.UserID == "" {
		return "", ErrNoUser
	}
	return c.UserID, nil
}
