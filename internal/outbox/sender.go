package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

// TextSender delivers text messages to the hub.
type TextSender interface {
	Send(ctx context.Context, chatID, text string) (remoteID string, err error)
	Connected() bool
}

// Result is the payload of message.send_ack and message.send_failed events.
// EchoID names the duplicate row of an echo ingested before the ack, which the
// ack removed.
type Result struct {
	ClientMsgID string
	ChatID      string
	MessageID   int64
	RemoteID    string
	EchoID      int64
	Error       string
}

// Sender drains the outbox and sends messages through the hub transport.
type Sender struct {
	db       *store.DB
	sender   TextSender
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSender creates a new outbox sender.
func NewSender(db *store.DB, sender TextSender, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:       db,
		sender:   sender,
		bus:      b,
		logger:   logger,
		interval: 500 * time.Millisecond,
	}
}

// Start begins polling the outbox for pending messages. A new local message
// or a fresh hub connection triggers an immediate pass.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	created, unsubCreated := s.bus.Subscribe("message.created", 16)
	defer unsubCreated()
	connected, unsubConnected := s.bus.Subscribe("transport.connected", 1)
	defer unsubConnected()

	for {
		select {
		case <-ticker.C:
		case <-created:
		case <-connected:
		case <-ctx.Done():
			return
		}
		s.ProcessPending(ctx)
	}
}

// ProcessPending sends every queued entry once. Entries stay queued while the
// transport is disconnected.
func (s *Sender) ProcessPending(ctx context.Context) {
	if !s.sender.Connected() {
		return
	}
	pending, err := s.db.PendingOutbox(ctx)
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.db.MarkOutboxSending(ctx, entry.ClientMsgID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		res := Result{ClientMsgID: entry.ClientMsgID, ChatID: entry.ChatID, MessageID: entry.MessageID}
		remoteID, err := s.sender.Send(ctx, entry.ChatID, entry.Body)
		if err != nil {
			s.logger.Error("failed to send message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			if err := s.db.MarkOutboxFailed(ctx, entry.ClientMsgID, err.Error()); err != nil {
				s.logger.Error("failed to mark failed", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			}
			res.Error = err.Error()
			s.bus.Emit("message.send_failed", res)
			continue
		}

		echoID, err := s.db.MarkOutboxSent(ctx, entry.ClientMsgID, remoteID)
		if err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		if echoID != 0 {
			s.logger.Debug("merged early echo", zap.Int64("echo_id", echoID), zap.Int64("message_id", entry.MessageID))
		}
		res.EchoID = echoID

		s.logger.Info("message sent", zap.String("client_msg_id", entry.ClientMsgID), zap.String("remote_id", remoteID))
		res.RemoteID = remoteID
		s.bus.Emit("message.send_ack", res)
	}
}

// RetryFailed puts failed entries back in the queue and returns how many moved.
func (s *Sender) RetryFailed(ctx context.Context) (int64, error) {
	n, err := s.db.RequeueFailedOutbox(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("requeued failed messages", zap.Int64("count", n))
	}
	return n, nil
}
