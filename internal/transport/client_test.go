package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/status"
)

// hub is a minimal websocket peer: it pushes greet on connect, acks sends,
// and refuses sends whose text is "reject".
type hub struct {
	token   string
	greet   *Frame
	dropNth int32 // close the nth connection right after greeting
	conns   atomic.Int32
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	n := h.conns.Add(1)

	if h.greet != nil {
		_ = conn.WriteJSON(h.greet)
	}
	if n == h.dropNth {
		return
	}
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Type != FrameSend {
			continue
		}
		if f.Text == "reject" {
			_ = conn.WriteJSON(Frame{Type: FrameError, ID: f.ID, Error: "blocked"})
			continue
		}
		_ = conn.WriteJSON(Frame{Type: FrameAck, ID: f.ID, MessageID: "srv-" + f.ChatID})
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRunPublishesInboundAndSends(t *testing.T) {
	h := &hub{token: "tok", greet: &Frame{Type: FrameMessage, ChatID: "c1", MessageID: "r1", SenderID: "bob", Text: "hi"}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	b := bus.New()
	inbound, unsub := b.Subscribe("transport.message", 4)
	defer unsub()
	m := status.NewMachine(b)
	c := NewClient(wsURL(srv), "tok", m, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case evt := <-inbound:
		msg, ok := evt.Payload.(*InboundMessage)
		if !ok || msg.Text != "hi" || msg.RemoteID != "r1" {
			t.Errorf("inbound = %+v", evt.Payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no inbound message")
	}
	waitFor(t, func() bool { return m.Current() == status.Ready })

	remoteID, err := c.Send(context.Background(), "c1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if remoteID != "srv-c1" {
		t.Errorf("remote id = %q, want srv-c1", remoteID)
	}
	if _, err := c.Send(context.Background(), "c1", "reject"); err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Errorf("rejected send: err = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil after cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunUnauthorized(t *testing.T) {
	srv := httptest.NewServer(&hub{token: "good"})
	defer srv.Close()

	b := bus.New()
	m := status.NewMachine(b)
	c := NewClient(wsURL(srv), "bad", m, b, nil)

	err := c.Run(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Run() = %v, want ErrUnauthorized", err)
	}
	if m.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}
}

func TestRunReconnects(t *testing.T) {
	h := &hub{token: "tok", dropNth: 1}
	srv := httptest.NewServer(h)
	defer srv.Close()

	b := bus.New()
	events, unsub := b.Subscribe("transport.", 8)
	defer unsub()
	c := NewClient(wsURL(srv), "tok", status.NewMachine(b), b, nil, WithReconnectDelay(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	var kinds []string
	timeout := time.After(3 * time.Second)
	for len(kinds) < 3 {
		select {
		case evt := <-events:
			kinds = append(kinds, evt.Kind)
		case <-timeout:
			t.Fatalf("events so far: %v", kinds)
		}
	}
	want := []string{"transport.connected", "transport.disconnected", "transport.connected"}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
	if h.conns.Load() < 2 {
		t.Errorf("hub saw %d connections, want at least 2", h.conns.Load())
	}
}

func TestSendNotConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/ws", "tok", nil, bus.New(), nil)
	if _, err := c.Send(context.Background(), "c1", "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() = %v, want ErrNotConnected", err)
	}
}
