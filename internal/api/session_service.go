package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/session"
	"github.com/matheus3301/achat/internal/settings"
	"github.com/matheus3301/achat/internal/status"
	"github.com/matheus3301/achat/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Checkpointer reports the newest ingested message time.
type Checkpointer interface {
	LastIngested(ctx context.Context) (string, error)
}

// SessionService implements the session gRPC service.
type SessionService struct {
	session   session.Context
	startedAt time.Time
	machine   *status.Machine
	db        *store.DB
	settings  *settings.Store
	ingest    Checkpointer
	perPage   int
	bus       *bus.Bus
	logger    *zap.Logger
}

// SessionDeps groups the collaborators of a SessionService. DB, Settings and
// Ingest may be nil. PageSize is the history page size used while no setting
// is stored; zero means history.DefaultPageSize.
type SessionDeps struct {
	Session  session.Context
	Machine  *status.Machine
	DB       *store.DB
	Settings *settings.Store
	Ingest   Checkpointer
	PageSize int
	Bus      *bus.Bus
	Logger   *zap.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(d SessionDeps) *SessionService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		session:   d.Session,
		startedAt: time.Now(),
		machine:   d.Machine,
		db:        d.DB,
		settings:  d.Settings,
		ingest:    d.Ingest,
		perPage:   defaultPageSize(d.PageSize),
		bus:       d.Bus,
		logger:    logger,
	}
}

func (s *SessionService) GetStatus(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	resp := &StatusResponse{
		Session:       s.session.Name,
		UserID:        s.session.UserID,
		Status:        string(s.machine.Current()),
		StatusSinceMs: s.machine.Since().UnixMilli(),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
	}

	// Counts are best effort; a busy store must not fail the status call.
	if s.db != nil {
		if n, err := s.db.ChatCount(ctx); err == nil {
			resp.ChatCount = n
		}
		if n, err := s.db.MessageCount(ctx); err == nil {
			resp.MessageCount = n
		}
	}
	if s.ingest != nil {
		if at, err := s.ingest.LastIngested(ctx); err == nil {
			resp.LastIngested = at
		}
	}
	return resp, nil
}

func (s *SessionService) GetSettings(ctx context.Context, _ *Empty) (*Settings, error) {
	if s.settings == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "settings not initialized")
	}
	return s.readSettings(ctx), nil
}

func (s *SessionService) UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*Settings, error) {
	if s.settings == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "settings not initialized")
	}
	if req.PageSize != nil {
		if *req.PageSize <= 0 {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "page size must be positive")
		}
		if err := s.settings.SetInt(ctx, settings.KeyPageSize, *req.PageSize); err != nil {
			return nil, toStatus("update settings", err)
		}
	}
	if req.ShowPresence != nil {
		if err := s.settings.SetBool(ctx, settings.KeyShowPresence, *req.ShowPresence); err != nil {
			return nil, toStatus("update settings", err)
		}
	}
	if req.ContactSort != nil {
		sort := store.ContactSort(*req.ContactSort)
		if sort != store.SortByName && sort != store.SortByLastSeen {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown contact sort %q", *req.ContactSort)
		}
		if err := s.settings.SetString(ctx, settings.KeyContactSort, string(sort)); err != nil {
			return nil, toStatus("update settings", err)
		}
	}
	if req.Notifications != nil {
		if err := s.settings.SetBool(ctx, settings.KeyNotifications, *req.Notifications); err != nil {
			return nil, toStatus("update settings", err)
		}
	}
	return s.readSettings(ctx), nil
}

func (s *SessionService) readSettings(ctx context.Context) *Settings {
	return &Settings{
		PageSize:      s.settings.GetInt(ctx, settings.KeyPageSize, s.perPage),
		ShowPresence:  s.settings.GetBool(ctx, settings.KeyShowPresence, true),
		ContactSort:   s.settings.GetString(ctx, settings.KeyContactSort, string(store.SortByName)),
		Notifications: s.settings.GetBool(ctx, settings.KeyNotifications, true),
	}
}

func (s *SessionService) WatchEvents(req *WatchEventsRequest, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				s.logger.Warn("failed to encode event payload", zap.String("kind", evt.Kind), zap.Error(err))
				payload = nil
			}
			if err := stream.SendMsg(&EventEnvelope{
				EventID:          evt.ID,
				Session:          s.session.Name,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
