// Package transport connects the daemon to the realtime hub over a websocket.
// Inbound frames are published on the bus; outbound sends wait for the hub's ack.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by Send while no connection is open.
	ErrNotConnected = errors.New("transport not connected")
	// ErrUnauthorized is returned when the hub rejects the access token.
	ErrUnauthorized = errors.New("hub rejected access token")
)

const (
	defaultReconnectDelay = 2 * time.Second
	defaultAckTimeout     = 10 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithReconnectDelay sets the pause between a dropped connection and the next dial.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) { c.reconnectDelay = d }
}

// WithAckTimeout bounds how long Send waits for the hub when ctx has no deadline.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Client) { c.ackTimeout = d }
}

// Client is a websocket client for the hub.
type Client struct {
	url            string
	token          string
	bus            *bus.Bus
	machine        *status.Machine
	logger         *zap.Logger
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	ackTimeout     time.Duration
	newID          func() string

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan Frame
}

// NewClient creates a hub client. machine may be nil.
func NewClient(url, token string, machine *status.Machine, b *bus.Bus, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:            url,
		token:          token,
		bus:            b,
		machine:        machine,
		logger:         logger,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: defaultReconnectDelay,
		ackTimeout:     defaultAckTimeout,
		newID:          uuid.NewString,
		pending:        make(map[string]chan Frame),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the hub once with the given bearer token.
func (c *Client) Connect(ctx context.Context, token string) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrUnauthorized
		}
		return fmt.Errorf("dial hub: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run keeps a connection open until ctx is done, reconnecting after a fixed
// delay whenever it drops. It returns ErrUnauthorized if the hub rejects the
// token, and nil once ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.transition(status.Connecting)
		err := c.Connect(ctx, c.token)
		switch {
		case errors.Is(err, ErrUnauthorized):
			c.logger.Warn("hub rejected token")
			c.transition(status.AuthRequired)
			c.bus.Emit("session.auth_required", nil)
			return err
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("hub connect failed", zap.Error(err))
			c.transition(status.Reconnecting)
		default:
			c.logger.Info("connected to hub", zap.String("url", c.url))
			c.transition(status.Ready)
			c.bus.Emit("transport.connected", nil)

			err = c.serve(ctx)
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("hub connection lost", zap.Error(err))
			c.transition(status.Reconnecting)
			c.bus.Emit("transport.disconnected", nil)
		}

		select {
		case <-time.After(c.reconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

// serve reads frames until the connection fails or ctx is done.
func (c *Client) serve(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	defer c.drop(conn)
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		c.handleFrame(f)
	}
}

func (c *Client) handleFrame(f Frame) {
	switch f.Type {
	case FrameMessage:
		m, err := ParseMessage(f)
		if err != nil {
			c.logger.Warn("dropping malformed message frame", zap.Error(err))
			return
		}
		c.bus.Emit("transport.message", m)
	case FramePresence:
		p, err := ParsePresence(f)
		if err != nil {
			c.logger.Warn("dropping malformed presence frame", zap.Error(err))
			return
		}
		c.bus.Emit("transport.presence", p)
	case FrameAck, FrameError:
		c.pendingMu.Lock()
		ch, ok := c.pending[f.ID]
		delete(c.pending, f.ID)
		c.pendingMu.Unlock()
		if ok {
			ch <- f
		} else if f.Type == FrameError {
			c.logger.Warn("hub error", zap.String("error", f.Error))
		}
	default:
		c.logger.Debug("ignoring frame", zap.String("type", f.Type))
	}
}

// drop forgets conn and fails every send still waiting for an ack.
func (c *Client) drop(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		ch <- Frame{Type: FrameError, ID: id, Error: "connection lost"}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// Send delivers a text message and returns the hub's id for it.
func (c *Client) Send(ctx context.Context, chatID, text string) (string, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return "", ErrNotConnected
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ackTimeout)
		defer cancel()
	}

	id := c.newID()
	ch := make(chan Frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(Frame{Type: FrameSend, ID: id, ChatID: chatID, Text: text, Timestamp: time.Now().Unix()})
	c.writeMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("write frame: %w", err)
	}

	select {
	case f := <-ch:
		if f.Type == FrameError {
			return "", fmt.Errorf("hub refused message: %s", f.Error)
		}
		return f.MessageID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close closes the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) transition(to status.State) {
	if c.machine == nil || c.machine.Current() == to {
		return
	}
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("status transition skipped", zap.Error(err))
	}
}
