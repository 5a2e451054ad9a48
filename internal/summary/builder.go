// Package summary derives the chat list: one row per chat with its peer and
// latest message, newest first.
package summary

import (
	"context"
	"sort"
	"strings"

	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

// ChatSummary is a derived chat-list row. It is recomputed on every Build and
// never stored.
type ChatSummary struct {
	ChatID        string
	PeerUserID    string
	Title         string
	AvatarURL     string
	Presence      store.Presence
	LastMessage   string
	LastKind      store.MessageKind
	LastSenderID  string
	LastTimestamp string
}

// PeerResolver finds the other member of a direct chat.
type PeerResolver interface {
	ResolvePeerUserID(ctx context.Context, chatID string) (string, error)
}

// Builder computes chat summaries from the store.
type Builder struct {
	db     *store.DB
	peers  PeerResolver
	logger *zap.Logger
}

// NewBuilder creates a summary builder.
func NewBuilder(db *store.DB, peers PeerResolver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{db: db, peers: peers, logger: logger}
}

// Build returns a summary for every chat that has at least one message,
// ordered by last message time descending. A chat whose own queries fail is
// left out and logged; only failing to enumerate chats fails the call.
func (b *Builder) Build(ctx context.Context) ([]ChatSummary, error) {
	ids, err := b.db.ListChatIDs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ChatSummary, 0, len(ids))
	for _, id := range ids {
		s, ok, err := b.build(ctx, id)
		if err != nil {
			b.logger.Warn("skipping chat in summary", zap.String("chat_id", id), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastTimestamp > out[j].LastTimestamp
	})
	return out, nil
}

// Get builds the summary of a single chat. ok is false when the chat has no messages.
func (b *Builder) Get(ctx context.Context, chatID string) (ChatSummary, bool, error) {
	return b.build(ctx, chatID)
}

func (b *Builder) build(ctx context.Context, chatID string) (ChatSummary, bool, error) {
	last, err := b.db.LatestMessage(ctx, chatID)
	if err != nil {
		return ChatSummary{}, false, err
	}
	if last == nil {
		return ChatSummary{}, false, nil
	}

	s := ChatSummary{
		ChatID:        chatID,
		Title:         chatID,
		Presence:      store.PresenceOffline,
		LastMessage:   last.Preview(),
		LastKind:      last.Kind,
		LastSenderID:  last.SenderID,
		LastTimestamp: last.CreatedAt,
	}

	peerID, err := b.peers.ResolvePeerUserID(ctx, chatID)
	if err != nil || peerID == "" {
		if err != nil {
			b.logger.Debug("peer lookup failed", zap.String("chat_id", chatID), zap.Error(err))
		}
		return s, true, nil
	}
	s.PeerUserID = peerID

	peer, err := b.db.GetUser(ctx, peerID)
	if err != nil || peer == nil {
		return s, true, nil
	}
	s.Title = peer.Name()
	s.AvatarURL = peer.AvatarURL
	if peer.Presence != "" {
		s.Presence = peer.Presence
	}
	return s, true, nil
}

// Filter keeps the summaries whose title or last message contains query,
// case-insensitively. An empty query keeps everything.
func Filter(summaries []ChatSummary, query string) []ChatSummary {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return summaries
	}
	var out []ChatSummary
	for _, s := range summaries {
		if strings.Contains(strings.ToLower(s.Title), q) || strings.Contains(strings.ToLower(s.LastMessage), q) {
			out = append(out, s)
		}
	}
	return out
}
