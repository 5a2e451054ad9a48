package api

import (
	"context"
	"path/filepath"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/history"
	"github.com/matheus3301/achat/internal/outbox"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/settings"
	"github.com/matheus3301/achat/internal/store"
	"github.com/matheus3301/achat/internal/transfer"
	"github.com/matheus3301/achat/internal/viewmodel"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// MessageService implements the message gRPC service.
type MessageService struct {
	session   session.Context
	db        *store.DB
	pager     *history.Pager
	sender    *outbox.Sender
	transfers *transfer.Service
	settings  *settings.Store
	perPage   int
	bus       *bus.Bus
	logger    *zap.Logger
}

// MessageDeps groups the collaborators of a MessageService. Sender, Transfers
// and Settings may be nil; the calls that need them then report Unavailable.
// PageSize is the page size used while no setting is stored.
type MessageDeps struct {
	Session   session.Context
	DB        *store.DB
	Pager     *history.Pager
	Sender    *outbox.Sender
	Transfers *transfer.Service
	Settings  *settings.Store
	PageSize  int
	Bus       *bus.Bus
	Logger    *zap.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(d MessageDeps) *MessageService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		session:   d.Session,
		db:        d.DB,
		pager:     d.Pager,
		sender:    d.Sender,
		transfers: d.Transfers,
		settings:  d.Settings,
		perPage:   defaultPageSize(d.PageSize),
		bus:       d.Bus,
		logger:    logger,
	}
}

func (s *MessageService) ListMessages(ctx context.Context, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	var before *store.Cursor
	if req.Before != nil {
		before = &store.Cursor{CreatedAt: req.Before.CreatedAt, MessageID: req.Before.MessageID}
	}
	page, err := s.pager.LoadPage(ctx, req.ChatID, s.pageSize(ctx, req.PageSize), before)
	if err != nil {
		return nil, toStatus("list messages", err)
	}
	return &ListMessagesResponse{
		Messages:    messagesFromStore(page.Messages, s.session.UserID),
		Cursor:      cursorFromStore(page.Cursor),
		CanLoadMore: page.CanLoadMore,
	}, nil
}

func (s *MessageService) SendText(ctx context.Context, req *SendTextRequest) (*SendResponse, error) {
	self, err := s.session.RequireUser()
	if err != nil {
		return nil, toStatus("send text", err)
	}
	m, err := s.pager.SendMessage(ctx, req.ChatID, self, req.Text)
	if err != nil {
		return nil, toStatus("send text", err)
	}
	return &SendResponse{Message: messageFromStore(m, s.session.UserID)}, nil
}

// SendFile stores a document message for the file at req.Path and uploads it.
// A failed upload leaves the message in the failed state.
func (s *MessageService) SendFile(ctx context.Context, req *SendFileRequest) (*SendResponse, error) {
	self, err := s.session.RequireUser()
	if err != nil {
		return nil, toStatus("send file", err)
	}
	if s.transfers == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "file transfer not configured")
	}
	if req.Path == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "send file: empty path")
	}
	m, err := s.pager.SendDocumentPlaceholder(ctx, req.ChatID, self, filepath.Base(req.Path))
	if err != nil {
		return nil, toStatus("send file", err)
	}
	if err := s.transfers.UploadFile(ctx, m.ID, req.Path); err != nil {
		s.logger.Error("upload failed", zap.Int64("message_id", m.ID), zap.Error(err))
		if serr := s.db.SetDeliveryStatus(context.WithoutCancel(ctx), m.ID, store.StatusFailed); serr != nil {
			s.logger.Error("failed to mark upload failed", zap.Int64("message_id", m.ID), zap.Error(serr))
		}
		return nil, toStatus("send file", err)
	}
	updated, err := s.db.GetMessage(ctx, m.ID)
	if err != nil || updated == nil {
		updated = m
	}
	return &SendResponse{Message: messageFromStore(updated, s.session.UserID)}, nil
}

func (s *MessageService) DownloadFile(ctx context.Context, req *MessageRequest) (*DownloadResponse, error) {
	if s.transfers == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "file transfer not configured")
	}
	path, err := s.transfers.DownloadFile(ctx, req.MessageID)
	if err != nil {
		return nil, toStatus("download file", err)
	}
	return &DownloadResponse{Path: path}, nil
}

func (s *MessageService) RetryFailed(ctx context.Context, _ *Empty) (*RetryResponse, error) {
	if s.sender == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "outbox not running")
	}
	n, err := s.sender.RetryFailed(ctx)
	if err != nil {
		return nil, toStatus("retry failed", err)
	}
	return &RetryResponse{Requeued: n}, nil
}

// WatchMessages streams the newest page of a chat and every later change to it.
func (s *MessageService) WatchMessages(req *WatchMessagesRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	ok, err := s.db.ChatExists(ctx, req.ChatID)
	if err != nil {
		return toStatus("watch messages", err)
	}
	if !ok {
		return grpcstatus.Errorf(codes.NotFound, "chat %q not found", req.ChatID)
	}

	conv := viewmodel.NewConversation(req.ChatID, s.pageSize(ctx, req.PageSize), s.pager, s.db, s.bus, s.logger)
	changed, unsub := conv.Subscribe()
	defer unsub()

	if err := conv.Start(ctx); err != nil {
		return toStatus("watch messages", err)
	}
	defer conv.Stop()

	for {
		select {
		case <-changed:
			if err := stream.SendMsg(&ConversationSnapshot{
				Messages:    messagesFromStore(conv.Messages(), s.session.UserID),
				CanLoadMore: conv.CanLoadMore(),
				Notice:      conv.Flash.Get(),
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *MessageService) pageSize(ctx context.Context, requested int) int {
	if requested > 0 {
		return requested
	}
	if s.settings == nil {
		return s.perPage
	}
	return s.settings.GetInt(ctx, settings.KeyPageSize, s.perPage)
}

func defaultPageSize(n int) int {
	if n > 0 {
		return n
	}
	return history.DefaultPageSize
}
