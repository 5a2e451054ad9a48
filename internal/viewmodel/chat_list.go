package viewmodel

import (
	"context"
	"sync"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/summary"
	"go.uber.org/zap"
)

// SummarySource builds the chat list.
type SummarySource interface {
	Build(ctx context.Context) ([]summary.ChatSummary, error)
}

// ChatList is the observable chat list with a search filter.
type ChatList struct {
	notifier

	mu     sync.RWMutex
	src    SummarySource
	bus    *bus.Bus
	logger *zap.Logger
	all    []summary.ChatSummary
	filter string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewChatList creates a chat list. It is empty until Load or Start.
func NewChatList(src SummarySource, b *bus.Bus, logger *zap.Logger) *ChatList {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatList{src: src, bus: b, logger: logger}
}

// Load rebuilds the list from the store and notifies observers.
func (l *ChatList) Load(ctx context.Context) error {
	all, err := l.src.Build(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.all = all
	l.mu.Unlock()
	l.signal()
	return nil
}

// SetFilter changes the search query and notifies observers.
func (l *ChatList) SetFilter(q string) {
	l.mu.Lock()
	l.filter = q
	l.mu.Unlock()
	l.signal()
}

// Items returns the filtered list, newest first.
func (l *ChatList) Items() []summary.ChatSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return summary.Filter(l.all, l.filter)
}

// Start loads the list and keeps it current as chats, messages and contacts change.
func (l *ChatList) Start(ctx context.Context) error {
	if err := l.Load(ctx); err != nil {
		return err
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	msgs, unsubMsgs := l.bus.Subscribe("message.", 64)
	chats, unsubChats := l.bus.Subscribe("chat.", 16)
	contacts, unsubContacts := l.bus.Subscribe("contact.", 16)

	go func() {
		defer close(l.done)
		defer unsubMsgs()
		defer unsubChats()
		defer unsubContacts()
		for {
			select {
			case <-msgs:
			case <-chats:
			case <-contacts:
			case <-ctx.Done():
				return
			}
			if err := l.Load(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("failed to refresh chat list", zap.Error(err))
			}
		}
	}()
	return nil
}

// Stop ends the background refresh.
func (l *ChatList) Stop() {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
}
