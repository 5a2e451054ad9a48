package viewmodel

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/history"
	"github.com/matheus3301/achat/internal/outbox"
	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

// PageLoader is the part of the pager a conversation needs.
type PageLoader interface {
	LoadPage(ctx context.Context, chatID string, pageSize int, before *store.Cursor) (*history.Page, error)
}

// MessageGetter fetches single messages by id.
type MessageGetter interface {
	GetMessage(ctx context.Context, id int64) (*store.Message, error)
}

// Conversation is the observable history of one chat. Older pages are
// prepended on demand; new and updated messages arrive through the bus.
type Conversation struct {
	notifier
	Flash Flash

	mu       sync.RWMutex
	chatID   string
	pageSize int
	pages    PageLoader
	msgs     MessageGetter
	bus      *bus.Bus
	logger   *zap.Logger
	items    []store.Message
	cursor   store.Cursor
	more     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConversation creates the view state for chatID.
func NewConversation(chatID string, pageSize int, pages PageLoader, msgs MessageGetter, b *bus.Bus, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversation{chatID: chatID, pageSize: pageSize, pages: pages, msgs: msgs, bus: b, logger: logger}
}

// ChatID returns the chat this conversation shows.
func (c *Conversation) ChatID() string { return c.chatID }

// LoadLatest replaces the state with the newest page.
func (c *Conversation) LoadLatest(ctx context.Context) error {
	page, err := c.pages.LoadPage(ctx, c.chatID, c.pageSize, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items = page.Messages
	c.cursor = page.Cursor
	c.more = page.CanLoadMore
	c.mu.Unlock()
	c.signal()
	return nil
}

// LoadOlder prepends the next older page. It returns how many messages were added.
func (c *Conversation) LoadOlder(ctx context.Context) (int, error) {
	c.mu.RLock()
	more, cur := c.more, c.cursor
	c.mu.RUnlock()
	if !more {
		return 0, nil
	}

	page, err := c.pages.LoadPage(ctx, c.chatID, c.pageSize, &cur)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.items = append(append([]store.Message(nil), page.Messages...), c.items...)
	if len(page.Messages) > 0 {
		c.cursor = page.Cursor
	}
	c.more = page.CanLoadMore
	c.mu.Unlock()
	c.signal()
	return len(page.Messages), nil
}

// Messages returns a snapshot in display order.
func (c *Conversation) Messages() []store.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]store.Message(nil), c.items...)
}

// CanLoadMore reports whether older messages exist.
func (c *Conversation) CanLoadMore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.more
}

// Start loads the newest page and follows message events for this chat.
func (c *Conversation) Start(ctx context.Context) error {
	if err := c.LoadLatest(ctx); err != nil {
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	events, unsub := c.bus.Subscribe("message.", 64)

	go func() {
		defer close(c.done)
		defer unsub()
		for {
			select {
			case evt := <-events:
				c.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop stops following events.
func (c *Conversation) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}

func (c *Conversation) handleEvent(ctx context.Context, evt bus.Event) {
	var chatID string
	var id int64
	switch p := evt.Payload.(type) {
	case bus.MessageRef:
		chatID, id = p.ChatID, p.MessageID
	case outbox.Result:
		chatID, id = p.ChatID, p.MessageID
		if evt.Kind == "message.send_failed" && chatID == c.chatID {
			c.Flash.Set("Message not sent: "+p.Error, 5*time.Second)
		}
		if p.EchoID != 0 && chatID == c.chatID {
			c.remove(p.EchoID)
		}
	default:
		return
	}
	if chatID != c.chatID || id == 0 {
		return
	}
	m, err := c.msgs.GetMessage(ctx, id)
	if err != nil || m == nil {
		if err != nil {
			c.logger.Debug("failed to load message for conversation", zap.Error(err), zap.Int64("message_id", id))
		}
		return
	}
	c.upsert(*m)
}

// remove drops the message with the given id, if shown.
func (c *Conversation) remove(id int64) {
	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.mu.Unlock()
			c.signal()
			return
		}
	}
	c.mu.Unlock()
}

// upsert replaces the message with the same id or inserts it in order.
func (c *Conversation) upsert(m store.Message) {
	c.mu.Lock()
	i := len(c.items)
	for j := range c.items {
		if c.items[j].ID == m.ID {
			c.items[j] = m
			c.mu.Unlock()
			c.signal()
			return
		}
		if before(m, c.items[j]) {
			i = j
			break
		}
	}
	c.items = append(c.items, store.Message{})
	copy(c.items[i+1:], c.items[i:])
	c.items[i] = m
	c.mu.Unlock()
	c.signal()
}

func before(a, b store.Message) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}
