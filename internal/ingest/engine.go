// Package ingest persists what the hub pushes: messages and presence changes.
package ingest

import (
	"context"
	"fmt"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/store"
	"github.com/matheus3301/achat/internal/transport"
	"go.uber.org/zap"
)

// checkpointKey holds the created_at of the newest ingested message.
const checkpointKey = "ingest.last_message_at"

// ChatEnsurer maps a hub chat id onto a local chat, creating it if needed.
type ChatEnsurer interface {
	EnsureDirectChat(ctx context.Context, chatID, peerID string) (string, error)
}

// Engine handles idempotent ingestion of hub events into the store.
// It subscribes to "transport." events on the bus and processes them.
type Engine struct {
	db     *store.DB
	chats  ChatEnsurer
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new ingestion engine.
func NewEngine(db *store.DB, chats ChatEnsurer, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:     db,
		chats:  chats,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound hub events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("transport.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the current event to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "transport.message":
		msg, ok := evt.Payload.(*transport.InboundMessage)
		if !ok {
			return
		}
		if _, err := e.IngestMessage(ctx, msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err),
				zap.String("chat_id", msg.ChatID), zap.String("remote_id", msg.RemoteID))
		}
	case "transport.presence":
		upd, ok := evt.Payload.(*transport.PresenceUpdate)
		if !ok {
			return
		}
		if err := e.ApplyPresence(ctx, upd); err != nil {
			e.logger.Error("failed to apply presence", zap.Error(err), zap.String("user_id", upd.UserID))
		}
	}
}

// IngestMessage stores a hub message (idempotent on its remote id) and
// returns the stored message. A message.received event is published only when
// a new row was written.
func (e *Engine) IngestMessage(ctx context.Context, in *transport.InboundMessage) (*store.Message, error) {
	chatID, err := e.chats.EnsureDirectChat(ctx, in.ChatID, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("ensure chat: %w", err)
	}

	msg := in.ToStoreMessage()
	msg.ChatID = chatID
	_, inserted, err := e.db.InsertRemoteMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if err := e.db.TouchLastSeen(ctx, in.SenderID, in.SentAt); err != nil {
		e.logger.Warn("failed to update last seen", zap.Error(err), zap.String("user_id", in.SenderID))
	}
	if !inserted {
		e.logger.Debug("duplicate message ignored", zap.String("remote_id", in.RemoteID))
		return msg, nil
	}

	e.advanceCheckpoint(ctx, msg.CreatedAt)
	e.bus.Publish(bus.Event{
		Kind:    "message.received",
		Payload: bus.MessageRef{ChatID: chatID, MessageID: msg.ID},
	})
	return msg, nil
}

// ApplyPresence records a peer's presence change.
func (e *Engine) ApplyPresence(ctx context.Context, upd *transport.PresenceUpdate) error {
	if err := e.db.TouchLastSeen(ctx, upd.UserID, upd.At); err != nil {
		return err
	}
	if err := e.db.SetPresence(ctx, upd.UserID, upd.Presence); err != nil {
		return err
	}
	e.bus.Emit("contact.changed", upd.UserID)
	return nil
}

// LastIngested returns the created_at of the newest message ingested so far,
// or "" if none.
func (e *Engine) LastIngested(ctx context.Context) (string, error) {
	v, _, err := e.db.GetSetting(ctx, checkpointKey)
	return v, err
}

func (e *Engine) advanceCheckpoint(ctx context.Context, createdAt string) {
	cur, _, err := e.db.GetSetting(ctx, checkpointKey)
	if err != nil || createdAt <= cur {
		return
	}
	if err := e.db.PutSetting(ctx, checkpointKey, createdAt); err != nil {
		e.logger.Warn("failed to store ingest checkpoint", zap.Error(err))
	}
}
