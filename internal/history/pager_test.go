package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insertText(t *testing.T, db *store.DB, chatID, sender, text, createdAt string) int64 {
	t.Helper()
	id, err := db.InsertMessage(context.Background(), &store.Message{
		ChatID: chatID, SenderID: sender, Kind: store.KindText, Text: text, CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func texts(msgs []store.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestLoadPageExample(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.CreateDirectChat(ctx, "c1", "A", "B"); err != nil {
		t.Fatal(err)
	}
	insertText(t, db, "c1", "A", "hi", "2024-01-01 10:00:00")
	insertText(t, db, "c1", "B", "hello", "2024-01-01 10:00:05")

	p := NewPager(db, nil, nil)

	first, err := p.LoadPage(ctx, "c1", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := texts(first.Messages); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("first page = %v, want [hello]", got)
	}
	if first.Cursor.CreatedAt != "2024-01-01 10:00:05" {
		t.Errorf("cursor = %q, want 2024-01-01 10:00:05", first.Cursor.CreatedAt)
	}
	if !first.CanLoadMore {
		t.Error("first page: CanLoadMore = false, want true")
	}

	// A timestamp-only cursor behaves as a plain createdAt < cursor filter.
	second, err := p.LoadPage(ctx, "c1", 1, &store.Cursor{CreatedAt: "2024-01-01 10:00:05"})
	if err != nil {
		t.Fatal(err)
	}
	if got := texts(second.Messages); len(got) != 1 || got[0] != "hi" {
		t.Fatalf("second page = %v, want [hi]", got)
	}
	if second.CanLoadMore {
		t.Error("second page: CanLoadMore = true, want false")
	}
}

func TestLoadPageEmptyChat(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.CreateDirectChat(ctx, "c1", "A", "B"); err != nil {
		t.Fatal(err)
	}

	page, err := NewPager(db, nil, nil).LoadPage(ctx, "c1", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 0 || page.CanLoadMore || !page.Cursor.IsZero() {
		t.Errorf("page = %+v, want empty", page)
	}
}

func TestLoadPageCompleteAndOrdered(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		pageSize int
	}{
		{"exact multiple", 20, 5},
		{"remainder", 23, 5},
		{"single page", 3, 10},
		{"page of one", 7, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			ctx := context.Background()
			if err := db.CreateDirectChat(ctx, "c1", "A", "B"); err != nil {
				t.Fatal(err)
			}
			base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
			want := make([]int64, tt.n)
			for i := 0; i < tt.n; i++ {
				// Three messages per second so page boundaries land inside ties.
				ts := store.FormatTime(base.Add(time.Duration(i/3) * time.Second))
				want[i] = insertText(t, db, "c1", "A", fmt.Sprintf("m%d", i), ts)
			}

			p := NewPager(db, nil, nil)
			var all []store.Message
			var before *store.Cursor
			for pages := 0; ; pages++ {
				if pages > tt.n+1 {
					t.Fatal("pagination did not terminate")
				}
				page, err := p.LoadPage(ctx, "c1", tt.pageSize, before)
				if err != nil {
					t.Fatal(err)
				}
				if len(page.Messages) > tt.pageSize {
					t.Fatalf("page has %d messages, limit %d", len(page.Messages), tt.pageSize)
				}
				all = append(page.Messages, all...)
				if !page.CanLoadMore {
					break
				}
				cur := page.Cursor
				before = &cur
			}

			if len(all) != tt.n {
				t.Fatalf("loaded %d messages, want %d", len(all), tt.n)
			}
			for i, m := range all {
				if m.ID != want[i] {
					t.Fatalf("position %d: id %d, want %d", i, m.ID, want[i])
				}
				if i > 0 {
					prev := all[i-1]
					if m.CreatedAt < prev.CreatedAt || (m.CreatedAt == prev.CreatedAt && m.ID <= prev.ID) {
						t.Fatalf("order broken at %d: %+v after %+v", i, m, prev)
					}
				}
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.CreateDirectChat(ctx, "c1", "A", "B"); err != nil {
		t.Fatal(err)
	}
	b := bus.New()
	events, unsub := b.Subscribe("message.", 4)
	defer unsub()

	p := NewPager(db, b, nil)
	m, err := p.SendMessage(ctx, "c1", "A", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID == 0 || m.Kind != store.KindText || m.Status != store.StatusPending {
		t.Errorf("message = %+v", m)
	}
	if _, err := store.ParseTime(m.CreatedAt); err != nil {
		t.Errorf("created_at %q: %v", m.CreatedAt, err)
	}

	pending, err := db.PendingOutbox(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].MessageID != m.ID || pending[0].Body != "hello" {
		t.Errorf("outbox = %+v", pending)
	}

	select {
	case evt := <-events:
		payload, ok := evt.Payload.(bus.MessageRef)
		if evt.Kind != "message.created" || !ok || payload.MessageID != m.ID {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no message.created event")
	}

	page, err := p.LoadPage(ctx, "c1", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != m.ID {
		t.Errorf("page = %+v", page.Messages)
	}
}

func TestSendMessageErrors(t *testing.T) {
	db := testDB(t)
	p := NewPager(db, nil, nil)
	ctx := context.Background()

	if _, err := p.SendMessage(ctx, "missing", "A", "hello"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown chat: err = %v, want ErrNotFound", err)
	}
	if _, err := p.SendMessage(ctx, "missing", "A", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank text: err = %v, want ErrEmptyMessage", err)
	}
	if _, err := p.SendDocumentPlaceholder(ctx, "missing", "A", "a.pdf"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("document to unknown chat: err = %v, want ErrNotFound", err)
	}
}

func TestSendWithoutSenderWritesNothing(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.CreateDirectChat(ctx, "c1", "A", "B"); err != nil {
		t.Fatal(err)
	}
	p := NewPager(db, nil, nil)

	if _, err := p.SendMessage(ctx, "c1", "", "hello"); !errors.Is(err, session.ErrNoUser) {
		t.Errorf("SendMessage without sender: err = %v, want ErrNoUser", err)
	}
	if _, err := p.SendDocumentPlaceholder(ctx, "c1", "", "a.pdf"); !errors.Is(err, session.ErrNoUser) {
		t.Errorf("SendDocumentPlaceholder without sender: err = %v, want ErrNoUser", err)
	}
	if n, _ := db.MessageCount(ctx); n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
	if pending, _ := db.PendingOutbox(ctx); len(pending) != 0 {
		t.Errorf("queued outbox entries = %d, want 0", len(pending))
	}
}

func TestDocumentPlaceholderLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.CreateDirectChat(ctx, "c1", "A", "B"); err != nil {
		t.Fatal(err)
	}
	p := NewPager(db, nil, nil)

	m, err := p.SendDocumentPlaceholder(ctx, "c1", "A", "report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetMessage(ctx, m.ID)
	if got.Kind != store.KindDocument || got.Document == nil {
		t.Fatalf("stored = %+v", got)
	}
	if d := got.Document; d.FileName != "report.pdf" || d.FileSize != 0 || d.RemoteURL != "" || d.LocalPath != "" {
		t.Errorf("placeholder document = %+v", d)
	}

	if err := p.RecordUpload(ctx, m.ID, "https://files.example/report.pdf", 2048, "application/pdf"); err != nil {
		t.Fatal(err)
	}
	if err := p.RecordDownload(ctx, m.ID, "/tmp/report.pdf"); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetMessage(ctx, m.ID)
	d := got.Document
	if d.RemoteURL != "https://files.example/report.pdf" || d.FileSize != 2048 || d.MimeType != "application/pdf" {
		t.Errorf("after upload = %+v", d)
	}
	if d.LocalPath != "/tmp/report.pdf" || !d.IsDownloaded {
		t.Errorf("after download = %+v", d)
	}
	if got.Status != store.StatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}

	if err := p.RecordUpload(ctx, 9999, "x", 1, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown message: err = %v, want ErrNotFound", err)
	}
}
