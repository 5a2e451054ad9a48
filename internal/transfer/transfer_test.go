package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/achat/internal/history"
	"github.com/matheus3301/achat/internal/store"
)

// fileServer keeps uploads in memory and serves them back.
type fileServer struct {
	mu    sync.Mutex
	files map[string][]byte
	srv   *httptest.Server
	block chan struct{} // when set, downloads stall until closed
}

func newFileServer(t *testing.T) *fileServer {
	fs := &fileServer{files: map[string][]byte{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "no", http.StatusUnauthorized)
			return
		}
		data, _ := io.ReadAll(r.Body)
		name := r.URL.Query().Get("name")
		fs.mu.Lock()
		fs.files[name] = data
		fs.mu.Unlock()
		_ = json.NewEncoder(w).Encode(Uploaded{URL: fs.srv.URL + "/f/" + name, Size: int64(len(data))})
	})
	mux.HandleFunc("/f/", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		data, ok := fs.files[strings.TrimPrefix(r.URL.Path, "/f/")]
		block := fs.block
		fs.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if block != nil {
			w.Header().Set("Content-Length", "1000000")
			_, _ = w.Write(data)
			w.(http.Flusher).Flush()
			select {
			case <-block:
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write(data)
	})
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func TestHTTPClientRoundTrip(t *testing.T) {
	fs := newFileServer(t)
	dir := t.TempDir()

	var last int64
	c := NewHTTPClient(fs.srv.URL, "tok", dir, func(_ string, done, _ int64) { last = done })

	payload := []byte("hello document")
	up, err := c.Upload(context.Background(), bytes.NewReader(payload), "a.txt", "text/plain", int64(len(payload)))
	if err != nil {
		t.Fatal(err)
	}
	if up.Size != int64(len(payload)) || !strings.HasSuffix(up.URL, "/f/a.txt") {
		t.Errorf("uploaded = %+v", up)
	}
	if last != int64(len(payload)) {
		t.Errorf("progress reported %d bytes, want %d", last, len(payload))
	}

	first, err := c.Download(context.Background(), up.URL, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Download(context.Background(), up.URL, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if first != filepath.Join(dir, "a.txt") || second != filepath.Join(dir, "a (1).txt") {
		t.Errorf("paths = %q, %q", first, second)
	}
	got, _ := os.ReadFile(first)
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %q", got)
	}
}

func TestHTTPClientUploadUnauthorized(t *testing.T) {
	fs := newFileServer(t)
	c := NewHTTPClient(fs.srv.URL, "wrong", t.TempDir(), nil)
	if _, err := c.Upload(context.Background(), strings.NewReader("x"), "x.bin", "", 1); err == nil {
		t.Error("expected error")
	}
}

func TestHTTPClientDownloadCancel(t *testing.T) {
	fs := newFileServer(t)
	dir := t.TempDir()
	c := NewHTTPClient(fs.srv.URL, "tok", dir, nil)
	fs.files["big.bin"] = []byte("partial")
	fs.block = make(chan struct{})
	defer close(fs.block)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := c.Download(ctx, fs.srv.URL+"/f/big.bin", "big.bin")
	if err == nil {
		t.Fatal("expected error from cancelled download")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Logf("download error: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files left behind: %v", entries)
	}
}

func TestServiceUploadAndDownload(t *testing.T) {
	fs := newFileServer(t)
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := db.CreateDirectChat(ctx, "c1", "me", "bob"); err != nil {
		t.Fatal(err)
	}

	pager := history.NewPager(db, nil, nil)
	msg, err := pager.SendDocumentPlaceholder(ctx, "c1", "me", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "source.txt")
	if err := os.WriteFile(src, []byte("some notes"), 0600); err != nil {
		t.Fatal(err)
	}

	filesDir := t.TempDir()
	svc := NewService(db, NewHTTPClient(fs.srv.URL, "tok", filesDir, nil), pager, nil)
	if err := svc.UploadFile(ctx, msg.ID, src); err != nil {
		t.Fatal(err)
	}
	m, _ := db.GetMessage(ctx, msg.ID)
	if m.Document.RemoteURL == "" || m.Document.FileSize != 10 || m.Document.MimeType != "text/plain; charset=utf-8" {
		t.Errorf("after upload = %+v", m.Document)
	}

	path, err := svc.DownloadFile(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	m, _ = db.GetMessage(ctx, msg.ID)
	if !m.Document.IsDownloaded || m.Document.LocalPath != path {
		t.Errorf("after download = %+v", m.Document)
	}

	// A second download reuses the local file.
	again, err := svc.DownloadFile(ctx, msg.ID)
	if err != nil || again != path {
		t.Errorf("second download = %q, %v", again, err)
	}

	text, err := pager.SendMessage(ctx, "c1", "me", "plain")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DownloadFile(ctx, text.ID); err == nil {
		t.Error("expected error for text message")
	}
	if _, err := svc.DownloadFile(ctx, 9999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown message: err = %v, want ErrNotFound", err)
	}
}

func TestHTTPClientKeepsTokenOnFileServiceOrigin(t *testing.T) {
	fs := newFileServer(t)

	var (
		mu      sync.Mutex
		foreign []string
	)
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		foreign = append(foreign, r.Header.Get("Authorization"))
		mu.Unlock()
		_, _ = w.Write([]byte("theirs"))
	}))
	t.Cleanup(other.Close)

	c := NewHTTPClient(fs.srv.URL, "tok", t.TempDir(), nil)
	ctx := context.Background()

	if _, err := c.Download(ctx, other.URL+"/f", "theirs.txt"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if len(foreign) != 1 || foreign[0] != "" {
		t.Errorf("foreign host saw Authorization %q, want none", foreign)
	}
	mu.Unlock()

	// The file service itself still gets the token.
	up, err := c.Upload(ctx, strings.NewReader("x"), "mine.txt", "", 1)
	if err != nil {
		t.Fatalf("Upload() to own origin error = %v", err)
	}
	if _, err := c.Download(ctx, up.URL, "mine.txt"); err != nil {
		t.Fatal(err)
	}
}
