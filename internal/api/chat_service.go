package api

import (
	"context"

	"github.com/matheus3301/achat/internal/bus"
	"github.com/matheus3301/achat/internal/identity"
	"github.com/matheus3301/achat/internal/settings"
	"github.com/matheus3301/achat/internal/store"
	"github.com/matheus3301/achat/internal/summary"
	"github.com/matheus3301/achat/internal/viewmodel"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ChatService implements the chat gRPC service.
type ChatService struct {
	resolver *identity.Resolver
	builder  *summary.Builder
	settings *settings.Store
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewChatService creates a new chat service. prefs may be nil.
func NewChatService(resolver *identity.Resolver, builder *summary.Builder, prefs *settings.Store, b *bus.Bus, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{resolver: resolver, builder: builder, settings: prefs, bus: b, logger: logger}
}

func (s *ChatService) ListChats(ctx context.Context, req *ListChatsRequest) (*ListChatsResponse, error) {
	all, err := s.builder.Build(ctx)
	if err != nil {
		return nil, toStatus("list chats", err)
	}
	return s.chats(ctx, summary.Filter(all, req.Query)), nil
}

func (s *ChatService) GetChat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	sum, ok, err := s.builder.Get(ctx, req.ChatID)
	if err != nil {
		return nil, toStatus("get chat", err)
	}
	if !ok {
		return nil, grpcstatus.Errorf(codes.NotFound, "chat %q not found", req.ChatID)
	}
	return &ChatResponse{Chat: chatFromSummary(sum, s.showPresence(ctx))}, nil
}

func (s *ChatService) OpenChat(ctx context.Context, req *OpenChatRequest) (*OpenChatResponse, error) {
	id, err := s.resolver.GetOrCreateDirectChatID(ctx, req.UserID)
	if err != nil {
		return nil, toStatus("open chat", err)
	}
	return &OpenChatResponse{ChatID: id}, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, req *ChatRequest) (*Empty, error) {
	if err := s.resolver.DeleteChat(ctx, req.ChatID); err != nil {
		return nil, toStatus("delete chat", err)
	}
	return &Empty{}, nil
}

// WatchChats sends the filtered chat list now and again after every change.
func (s *ChatService) WatchChats(req *ListChatsRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	list := viewmodel.NewChatList(s.builder, s.bus, s.logger)
	list.SetFilter(req.Query)
	changed, unsub := list.Subscribe()
	defer unsub()

	if err := list.Start(ctx); err != nil {
		return toStatus("watch chats", err)
	}
	defer list.Stop()

	for {
		select {
		case <-changed:
			if err := stream.SendMsg(s.chats(ctx, list.Items())); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *ChatService) chats(ctx context.Context, sums []summary.ChatSummary) *ListChatsResponse {
	show := s.showPresence(ctx)
	out := make([]Chat, 0, len(sums))
	for _, sum := range sums {
		out = append(out, chatFromSummary(sum, show))
	}
	return &ListChatsResponse{Chats: out}
}

func (s *ChatService) showPresence(ctx context.Context) bool {
	if s.settings == nil {
		return true
	}
	return s.settings.GetBool(ctx, settings.KeyShowPresence, true)
}

// contactSort returns the configured contact ordering.
func contactSort(ctx context.Context, prefs *settings.Store) store.ContactSort {
	if prefs == nil {
		return store.SortByName
	}
	return store.ContactSort(prefs.GetString(ctx, settings.KeyContactSort, string(store.SortByName)))
}
