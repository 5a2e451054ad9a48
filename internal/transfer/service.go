package transfer

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
)

// Files is the file service contract.
type Files interface {
	Upload(ctx context.Context, r io.Reader, fileName, mimeType string, size int64) (*Uploaded, error)
	Download(ctx context.Context, remoteURL, fileName string) (string, error)
}

// Recorder persists transfer results on document messages.
type Recorder interface {
	RecordUpload(ctx context.Context, messageID int64, remoteURL string, size int64, mimeType string) error
	RecordDownload(ctx context.Context, messageID int64, localPath string) error
}

// Service runs transfers for document messages.
type Service struct {
	db     *store.DB
	files  Files
	rec    Recorder
	logger *zap.Logger
}

// NewService creates a transfer service.
func NewService(db *store.DB, files Files, rec Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, files: files, rec: rec, logger: logger}
}

// UploadFile uploads the file at path as the payload of document message messageID.
func (s *Service) UploadFile(ctx context.Context, messageID int64, path string) error {
	m, err := s.document(ctx, messageID)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(m.Document.FileName))
	up, err := s.files.Upload(ctx, f, m.Document.FileName, mimeType, info.Size())
	if err != nil {
		return err
	}
	if err := s.rec.RecordUpload(ctx, messageID, up.URL, up.Size, mimeType); err != nil {
		return err
	}
	s.logger.Info("document uploaded", zap.Int64("message_id", messageID), zap.Int64("size", up.Size))
	return nil
}

// DownloadFile fetches the payload of document message messageID and returns
// the local path. Already-downloaded documents are not fetched again.
func (s *Service) DownloadFile(ctx context.Context, messageID int64) (string, error) {
	m, err := s.document(ctx, messageID)
	if err != nil {
		return "", err
	}
	d := m.Document
	if d.IsDownloaded && d.LocalPath != "" {
		if _, err := os.Stat(d.LocalPath); err == nil {
			return d.LocalPath, nil
		}
	}
	if d.RemoteURL == "" {
		return "", fmt.Errorf("message %d has not been uploaded", messageID)
	}

	path, err := s.files.Download(ctx, d.RemoteURL, d.FileName)
	if err != nil {
		return "", err
	}
	if err := s.rec.RecordDownload(ctx, messageID, path); err != nil {
		return "", err
	}
	s.logger.Info("document downloaded", zap.Int64("message_id", messageID), zap.String("path", path))
	return path, nil
}

func (s *Service) document(ctx context.Context, messageID int64) (*store.Message, error) {
	m, err := s.db.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("message %d: %w", messageID, store.ErrNotFound)
	}
	if m.Kind != store.KindDocument || m.Document == nil {
		return nil, fmt.Errorf("message %d is not a document", messageID)
	}
	return m, nil
}
