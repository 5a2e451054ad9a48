// Package identity maps user pairs to stable direct-chat ids and tracks which
// users are contacts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrSelfChat is returned when a direct chat with the current user is requested.
	ErrSelfChat = errors.New("cannot open a direct chat with yourself")

	// ErrEmptyUserID is returned when no peer user id is given.
	ErrEmptyUserID = errors.New("empty user id")

	// ErrNoSessionUser is returned when the session is not signed in.
	ErrNoSessionUser = session.ErrNoUser
)

// maxCreateAttempts bounds the lookup/insert loop when concurrent creators collide.
const maxCreateAttempts = 3

// Resolver resolves chat identities for the session's current user.
type Resolver struct {
	db      *store.DB
	session session.Context
	bus     *bus.Bus
	logger  *zap.Logger
	newID   func() string
}

// NewResolver creates a resolver bound to the given session.
func NewResolver(db *store.DB, sess session.Context, b *bus.Bus, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		db:      db,
		session: sess,
		bus:     b,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// GetOrCreateDirectChatID returns the id of the chat containing exactly the
// current user and otherUserID, creating it if needed. Concurrent callers for
// the same pair always observe the same id.
func (r *Resolver) GetOrCreateDirectChatID(ctx context.Context, otherUserID string) (string, error) {
	self := r.session.UserID
	if self == "" {
		return "", ErrNoSessionUser
	}
	if otherUserID == "" {
		return "", ErrEmptyUserID
	}
	if otherUserID == self {
		return "", ErrSelfChat
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		chatID, err := r.db.FindDirectChat(ctx, self, otherUserID)
		if err != nil {
			return "", err
		}
		if chatID != "" {
			return chatID, nil
		}

		chatID = r.newID()
		err = r.db.CreateDirectChat(ctx, chatID, self, otherUserID)
		if errors.Is(err, store.ErrDuplicateChat) {
			r.logger.Debug("direct chat created concurrently, retrying lookup",
				zap.String("peer", otherUserID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return "", err
		}

		r.logger.Info("direct chat created", zap.String("chat_id", chatID), zap.String("peer", otherUserID))
		r.publish("chat.created", chatID)
		return chatID, nil
	}
	return "", fmt.Errorf("get or create chat with %q: %w", otherUserID, store.ErrDuplicateChat)
}

// EnsureDirectChat makes sure a message addressed to chatID from peerID has a
// chat to land in. If chatID is unknown the chat is created under that id,
// unless a chat for the pair already exists, in which case its id is returned.
func (r *Resolver) EnsureDirectChat(ctx context.Context, chatID, peerID string) (string, error) {
	ok, err := r.db.ChatExists(ctx, chatID)
	if err != nil {
		return "", err
	}
	if ok {
		return chatID, nil
	}
	if r.session.UserID == "" {
		return "", ErrNoSessionUser
	}
	if peerID == r.session.UserID {
		return "", ErrSelfChat
	}

	err = r.db.CreateDirectChat(ctx, chatID, r.session.UserID, peerID)
	if errors.Is(err, store.ErrDuplicateChat) {
		existing, ferr := r.db.FindDirectChat(ctx, r.session.UserID, peerID)
		if ferr != nil {
			return "", ferr
		}
		if existing == "" {
			return "", err
		}
		r.logger.Info("remote chat id mapped to existing chat",
			zap.String("remote_chat_id", chatID), zap.String("chat_id", existing))
		return existing, nil
	}
	if err != nil {
		return "", err
	}
	r.publish("chat.created", chatID)
	return chatID, nil
}

// ResolvePeerUserID returns the participant of chatID that is not the current
// user, or "" when the chat has no such participant.
func (r *Resolver) ResolvePeerUserID(ctx context.Context, chatID string) (string, error) {
	ids, err := r.db.Participants(ctx, chatID)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		if id != r.session.UserID {
			return id, nil
		}
	}
	return "", nil
}

// MarkAsContact flags userID as a contact, creating the user row if needed.
func (r *Resolver) MarkAsContact(ctx context.Context, userID string) error {
	if err := r.db.SetContact(ctx, userID, true, true); err != nil {
		return err
	}
	r.publish("contact.changed", userID)
	return nil
}

// UnmarkAsContact clears the contact flag. Returns store.ErrNotFound for unknown users.
func (r *Resolver) UnmarkAsContact(ctx context.Context, userID string) error {
	if err := r.db.SetContact(ctx, userID, false, false); err != nil {
		return err
	}
	r.publish("contact.changed", userID)
	return nil
}

// DeleteChat removes a chat and everything that references it.
func (r *Resolver) DeleteChat(ctx context.Context, chatID string) error {
	if err := r.db.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	r.logger.Info("chat deleted", zap.String("chat_id", chatID))
	r.publish("chat.deleted", chatID)
	return nil
}

func (r *Resolver) publish(kind, id string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: id})
}
