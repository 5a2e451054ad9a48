// Package transfer moves document payloads to and from the hub's file service
// and records the results on the message rows.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ProgressFunc is called as bytes move. total is -1 when unknown.
type ProgressFunc func(fileName string, done, total int64)

// Uploaded describes a file accepted by the file service.
type Uploaded struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// HTTPClient talks to the file service over HTTP. The access token is only
// sent to the file service's own origin; document URLs come from peers.
type HTTPClient struct {
	baseURL  string
	origin   *url.URL
	token    string
	filesDir string
	http     *http.Client
	progress ProgressFunc
}

// NewHTTPClient creates a file service client. Downloads are written under filesDir.
func NewHTTPClient(baseURL, token, filesDir string, progress ProgressFunc) *HTTPClient {
	origin, _ := url.Parse(baseURL)
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		origin:   origin,
		token:    token,
		filesDir: filesDir,
		http:     &http.Client{Timeout: 10 * time.Minute},
		progress: progress,
	}
}

// Upload streams r to the file service and returns where it was stored.
// size may be -1 if unknown.
func (c *HTTPClient) Upload(ctx context.Context, r io.Reader, fileName, mimeType string, size int64) (*Uploaded, error) {
	u := c.baseURL + "/upload?name=" + url.QueryEscape(fileName)
	body := c.track(r, fileName, size)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mimeType)
	if size >= 0 {
		req.ContentLength = size
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", fileName, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("upload %s: file service returned %s", fileName, resp.Status)
	}

	var out Uploaded
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("upload %s: decode response: %w", fileName, err)
	}
	if out.URL == "" {
		return nil, fmt.Errorf("upload %s: response has no url", fileName)
	}
	return &out, nil
}

// Download fetches remoteURL into the files directory and returns the local
// path. A partially written file is removed if the transfer fails or is cancelled.
func (c *HTTPClient) Download(ctx context.Context, remoteURL, fileName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", fileName, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("download %s: file service returned %s", fileName, resp.Status)
	}

	if err := os.MkdirAll(c.filesDir, 0700); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(c.filesDir, ".partial-*")
	if err != nil {
		return "", err
	}
	_, copyErr := io.Copy(tmp, c.track(resp.Body, fileName, resp.ContentLength))
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", fileName, err)
	}

	dst := availablePath(c.filesDir, fileName)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return dst, nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token == "" || !c.sameOrigin(req.URL) {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *HTTPClient) sameOrigin(u *url.URL) bool {
	if c.origin == nil || c.origin.Host == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, c.origin.Scheme) && strings.EqualFold(u.Host, c.origin.Host)
}

func (c *HTTPClient) track(r io.Reader, fileName string, total int64) io.Reader {
	if c.progress == nil {
		return r
	}
	return &progressReader{r: r, name: fileName, total: total, fn: c.progress}
}

type progressReader struct {
	r     io.Reader
	name  string
	done  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.name, p.done, p.total)
	}
	return n, err
}

// availablePath returns dir/name, or dir/"name (n).ext" if that is taken.
func availablePath(dir, name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." {
		name = "file"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	p := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p
		}
		p = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}
