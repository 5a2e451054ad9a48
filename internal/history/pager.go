// Package history serves a chat's messages in backward pages and records
// locally-authored messages.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

// ErrEmptyMessage is returned when a message has no text or file name.
var ErrEmptyMessage = errors.New("message is empty")

// DefaultPageSize is used when a caller asks for a non-positive page size.
const DefaultPageSize = 50

// Page is one slice of a chat's history in display order.
type Page struct {
	// Messages are ascending by (CreatedAt, ID).
	Messages []store.Message
	// Cursor is the oldest message of the page; pass it back to load older ones.
	// It is zero when the page is empty.
	Cursor      store.Cursor
	CanLoadMore bool
}

// Pager loads and appends messages.
type Pager struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	newID  func() string
}

// NewPager creates a pager. bus and logger may be nil.
func NewPager(db *store.DB, b *bus.Bus, logger *zap.Logger) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{db: db, bus: b, logger: logger, newID: uuid.NewString}
}

// LoadPage returns up to pageSize messages older than before, or the latest
// pageSize messages when before is nil.
func (p *Pager) LoadPage(ctx context.Context, chatID string, pageSize int, before *store.Cursor) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var cur store.Cursor
	if before != nil {
		cur = *before
	}

	// One extra row tells us whether anything older exists.
	rows, err := p.db.ListMessagesBefore(ctx, chatID, cur, pageSize+1)
	if err != nil {
		return nil, err
	}
	more := len(rows) > pageSize
	if more {
		rows = rows[:pageSize]
	}

	// Rows come newest first.
	msgs := make([]store.Message, len(rows))
	for i, m := range rows {
		msgs[len(rows)-1-i] = m
	}

	page := &Page{Messages: msgs, CanLoadMore: more}
	if len(msgs) > 0 {
		oldest := msgs[0]
		page.Cursor = store.Cursor{CreatedAt: oldest.CreatedAt, MessageID: oldest.ID}
	}
	return page, nil
}

// SendMessage stores a text message authored locally and queues it for
// delivery. The returned message is the local echo; its status is pending
// until the outbox reports back.
func (p *Pager) SendMessage(ctx context.Context, chatID, senderID, text string) (*store.Message, error) {
	if senderID == "" {
		return nil, fmt.Errorf("message sender: %w", session.ErrNoUser)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("message text: %w", ErrEmptyMessage)
	}
	m := &store.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Kind:      store.KindText,
		Text:      text,
		CreatedAt: store.Now(),
		Status:    store.StatusPending,
	}
	if _, err := p.db.InsertMessageWithOutbox(ctx, m, p.newID()); err != nil {
		return nil, err
	}
	p.logger.Debug("message queued", zap.String("chat_id", chatID), zap.Int64("message_id", m.ID))
	p.publish("message.created", m)
	return m, nil
}

// SendDocumentPlaceholder stores a document message with no content yet. The
// file transfer fills in its remote URL through RecordUpload.
func (p *Pager) SendDocumentPlaceholder(ctx context.Context, chatID, senderID, fileName string) (*store.Message, error) {
	if senderID == "" {
		return nil, fmt.Errorf("document sender: %w", session.ErrNoUser)
	}
	if fileName == "" {
		return nil, fmt.Errorf("document file name: %w", ErrEmptyMessage)
	}
	m := &store.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Kind:      store.KindDocument,
		Document:  &store.Document{FileName: fileName},
		CreatedAt: store.Now(),
		Status:    store.StatusPending,
	}
	if _, err := p.db.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	p.publish("message.created", m)
	return m, nil
}

// RecordUpload stores where a document message's file was uploaded to.
func (p *Pager) RecordUpload(ctx context.Context, messageID int64, remoteURL string, size int64, mimeType string) error {
	if err := p.db.MarkDocumentUploaded(ctx, messageID, remoteURL, size, mimeType); err != nil {
		return fmt.Errorf("record upload of message %d: %w", messageID, err)
	}
	p.publishUpdated(ctx, messageID)
	return nil
}

// RecordDownload stores where a document message's file was saved locally.
func (p *Pager) RecordDownload(ctx context.Context, messageID int64, localPath string) error {
	if err := p.db.SetDocumentLocal(ctx, messageID, localPath); err != nil {
		return fmt.Errorf("record download of message %d: %w", messageID, err)
	}
	p.publishUpdated(ctx, messageID)
	return nil
}

func (p *Pager) publishUpdated(ctx context.Context, messageID int64) {
	m, err := p.db.GetMessage(ctx, messageID)
	if err != nil || m == nil {
		return
	}
	p.publish("message.updated", m)
}

func (p *Pager) publish(kind string, m *store.Message) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   bus.MessageRef{ChatID: m.ChatID, MessageID: m.ID},
	})
}
