// Package profile reads and edits user profiles: the current user's own and
// those of peers and contacts.
package profile

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

// Update carries editable fields of the current user. Nil fields are left unchanged.
type Update struct {
	FirstName   *string
	LastName    *string
	DisplayName *string
	About       *string
	Birthdate   *string
	AvatarURL   *string
}

// PeerProfile is a user as presented on their profile page.
type PeerProfile struct {
	store.User
	FullName      string
	Initials      string
	PresenceLabel string
}

// Service exposes profile operations for one session.
type Service struct {
	db      *store.DB
	session session.Context
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewService creates a profile service.
func NewService(db *store.DB, sess session.Context, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, session: sess, bus: b, logger: logger}
}

// Current returns the session user's profile, creating an empty row on first
// use. It fails with session.ErrNoUser when nobody is signed in.
func (s *Service) Current(ctx context.Context) (*store.User, error) {
	self, err := s.session.RequireUser()
	if err != nil {
		return nil, err
	}
	if err := s.db.EnsureUser(ctx, self); err != nil {
		return nil, err
	}
	u, err := s.db.GetUser(ctx, self)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, store.ErrNotFound
	}
	return u, nil
}

// UpdateCurrent applies upd to the session user's profile and returns the result.
func (s *Service) UpdateCurrent(ctx context.Context, upd Update) (*store.User, error) {
	u, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&u.FirstName, upd.FirstName)
	apply(&u.LastName, upd.LastName)
	apply(&u.DisplayName, upd.DisplayName)
	apply(&u.About, upd.About)
	apply(&u.Birthdate, upd.Birthdate)
	apply(&u.AvatarURL, upd.AvatarURL)

	if err := s.db.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", zap.String("user_id", u.ID))
	s.publish(u.ID)
	return u, nil
}

// SetPresence changes the session user's presence.
func (s *Service) SetPresence(ctx context.Context, p store.Presence) error {
	u, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if err := s.db.SetPresence(ctx, u.ID, p); err != nil {
		return err
	}
	s.publish(u.ID)
	return nil
}

// SetCustomStatus changes the session user's status text and emoji. Empty
// values clear them.
func (s *Service) SetCustomStatus(ctx context.Context, emoji, text string) error {
	u, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if err := s.db.SetCustomStatus(ctx, u.ID, strings.TrimSpace(emoji), strings.TrimSpace(text)); err != nil {
		return err
	}
	s.publish(u.ID)
	return nil
}

// Peer returns another user's profile. Unknown users yield store.ErrNotFound.
func (s *Service) Peer(ctx context.Context, userID string) (*PeerProfile, error) {
	u, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, store.ErrNotFound
	}
	full := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if full == "" {
		full = strings.TrimSpace(u.DisplayName)
	}
	return &PeerProfile{
		User:          *u,
		FullName:      full,
		Initials:      Initials(u),
		PresenceLabel: u.Presence.Label(),
	}, nil
}

// Contacts lists users flagged as contacts.
func (s *Service) Contacts(ctx context.Context, search string, sort store.ContactSort) ([]store.User, error) {
	return s.db.ListContacts(ctx, search, sort)
}

// Initials returns the upper-cased first letter of the first name, last name
// or display name, whichever is set first, or "?".
func Initials(u *store.User) string {
	for _, s := range []string{u.FirstName, u.LastName, u.DisplayName} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(s)
		return string(unicode.ToUpper(r))
	}
	return "?"
}

func (s *Service) publish(userID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: "contact.changed", Timestamp: time.Now(), Payload: userID})
}
