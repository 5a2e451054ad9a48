package viewmodel

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/history"
	"github.com/matheus3301/achat/internal/identity"
	"github.com/matheus3301/achat/internal/outbox"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/store"
	"github.com/matheus3301/achat/internal/summary"
)

type fixture struct {
	db       *store.DB
	bus      *bus.Bus
	resolver *identity.Resolver
	pager    *history.Pager
	builder  *summary.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	r := identity.NewResolver(db, session.Context{Name: "test", UserID: "me"}, b, nil)
	return &fixture{
		db:       db,
		bus:      b,
		resolver: r,
		pager:    history.NewPager(db, b, nil),
		builder:  summary.NewBuilder(db, r, nil),
	}
}

func (f *fixture) chat(t *testing.T, peer string) string {
	t.Helper()
	id, err := f.resolver.GetOrCreateDirectChatID(context.Background(), peer)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func (f *fixture) insert(t *testing.T, chatID, sender, text, at string) {
	t.Helper()
	_, err := f.db.InsertMessage(context.Background(), &store.Message{
		ChatID: chatID, SenderID: sender, Kind: store.KindText, Text: text, CreatedAt: at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change signal")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChatListLoadAndFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.db.UpsertUser(ctx, &store.User{ID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.UpsertUser(ctx, &store.User{ID: "bob", DisplayName: "Bob"}); err != nil {
		t.Fatal(err)
	}
	a := f.chat(t, "alice")
	b := f.chat(t, "bob")
	f.insert(t, a, "alice", "lunch?", "2024-01-01 10:00:00")
	f.insert(t, b, "bob", "build is green", "2024-01-01 11:00:00")

	l := NewChatList(f.builder, f.bus, nil)
	ch, unsub := l.Subscribe()
	defer unsub()

	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	waitSignal(t, ch)

	items := l.Items()
	if len(items) != 2 || items[0].ChatID != b || items[1].ChatID != a {
		t.Fatalf("items = %+v, want bob then alice", items)
	}

	l.SetFilter("ALI")
	waitSignal(t, ch)
	items = l.Items()
	if len(items) != 1 || items[0].Title != "Alice" {
		t.Fatalf("filtered items = %+v, want only Alice", items)
	}

	l.SetFilter("")
	if got := len(l.Items()); got != 2 {
		t.Errorf("after clearing filter: %d items, want 2", got)
	}
}

func TestChatListFollowsMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.chat(t, "alice")

	l := NewChatList(f.builder, f.bus, nil)
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	if got := len(l.Items()); got != 0 {
		t.Fatalf("empty chat listed: %d items", got)
	}

	if _, err := f.pager.SendMessage(ctx, a, "me", "hello"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		items := l.Items()
		return len(items) == 1 && items[0].LastMessage == "hello"
	})
}

func TestSubscribeUnsubscribeClosesChannel(t *testing.T) {
	var n notifier
	ch, unsub := n.Subscribe()
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
	// Signalling with no subscribers must not block.
	n.signal()
}

func TestConversationPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.chat(t, "alice")
	for i := 0; i < 5; i++ {
		f.insert(t, c, "alice", fmt.Sprintf("m%d", i), fmt.Sprintf("2024-01-01 10:00:0%d", i))
	}

	conv := NewConversation(c, 2, f.pager, f.db, f.bus, nil)
	if err := conv.LoadLatest(ctx); err != nil {
		t.Fatal(err)
	}
	assertTexts(t, conv.Messages(), "m3", "m4")
	if !conv.CanLoadMore() {
		t.Fatal("CanLoadMore = false after first page")
	}

	n, err := conv.LoadOlder(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("LoadOlder added %d, want 2", n)
	}
	assertTexts(t, conv.Messages(), "m1", "m2", "m3", "m4")

	if _, err := conv.LoadOlder(ctx); err != nil {
		t.Fatal(err)
	}
	assertTexts(t, conv.Messages(), "m0", "m1", "m2", "m3", "m4")
	if conv.CanLoadMore() {
		t.Error("CanLoadMore = true after reaching the first message")
	}

	n, err = conv.LoadOlder(ctx)
	if err != nil || n != 0 {
		t.Errorf("LoadOlder at start = (%d, %v), want (0, nil)", n, err)
	}
}

func TestConversationAppendsAndUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.chat(t, "alice")
	other := f.chat(t, "bob")
	f.insert(t, c, "alice", "earlier", "2000-01-01 00:00:00")

	conv := NewConversation(c, 10, f.pager, f.db, f.bus, nil)
	if err := conv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer conv.Stop()

	m, err := f.pager.SendMessage(ctx, c, "me", "echo")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.pager.SendMessage(ctx, other, "me", "elsewhere"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(conv.Messages()) == 2 })
	assertTexts(t, conv.Messages(), "earlier", "echo")

	if err := f.db.SetDeliveryStatus(ctx, m.ID, store.StatusSent); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit("message.send_ack", outbox.Result{ChatID: c, MessageID: m.ID})
	waitFor(t, func() bool {
		msgs := conv.Messages()
		return len(msgs) == 2 && msgs[1].Status == store.StatusSent
	})
}

func TestConversationDropsEarlyEcho(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.chat(t, "alice")

	conv := NewConversation(c, 10, f.pager, f.db, f.bus, nil)
	if err := conv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer conv.Stop()

	m, err := f.pager.SendMessage(ctx, c, "me", "hi")
	if err != nil {
		t.Fatal(err)
	}
	echo := &store.Message{ChatID: c, SenderID: "me", Kind: store.KindText, Text: "hi",
		CreatedAt: store.Now(), Status: store.StatusReceived, RemoteID: "R1"}
	if _, _, err := f.db.InsertRemoteMessage(ctx, echo); err != nil {
		t.Fatal(err)
	}
	f.bus.Emit("message.received", bus.MessageRef{ChatID: c, MessageID: echo.ID})
	waitFor(t, func() bool { return len(conv.Messages()) == 2 })

	pending, err := f.db.PendingOutbox(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending outbox = %v, %v", pending, err)
	}
	echoID, err := f.db.MarkOutboxSent(ctx, pending[0].ClientMsgID, "R1")
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Emit("message.send_ack", outbox.Result{ChatID: c, MessageID: m.ID, RemoteID: "R1", EchoID: echoID})
	waitFor(t, func() bool {
		msgs := conv.Messages()
		return len(msgs) == 1 && msgs[0].ID == m.ID && msgs[0].Status == store.StatusSent
	})
}

func TestConversationFlashOnSendFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.chat(t, "alice")

	conv := NewConversation(c, 10, f.pager, f.db, f.bus, nil)
	if err := conv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer conv.Stop()

	m, err := f.pager.SendMessage(ctx, c, "me", "doomed")
	if err != nil {
		t.Fatal(err)
	}
	f.bus.Emit("message.send_failed", outbox.Result{ChatID: c, MessageID: m.ID, Error: "offline"})
	waitFor(t, func() bool { return conv.Flash.Get() == "Message not sent: offline" })
}

func TestFlashExpires(t *testing.T) {
	var fl Flash
	fl.Set("hello", time.Hour)
	if got := fl.Get(); got != "hello" {
		t.Fatalf("Get = %q, want hello", got)
	}
	fl.Set("gone", -time.Second)
	if got := fl.Get(); got != "" {
		t.Fatalf("expired Get = %q, want empty", got)
	}
}

func assertTexts(t *testing.T, msgs []store.Message, want ...string) {
	t.Helper()
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, m := range msgs {
		if m.Text != want[i] {
			t.Fatalf("message %d = %q, want %q", i, m.Text, want[i])
		}
	}
}
