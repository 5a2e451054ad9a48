package api

import (
	"context"

	"github.com/matheus3301/achat/internal/identity"
	"github.com/matheus3301/achat/internal/profile"
	"github.com/matheus3301/achat/internal/settings"
	"github.com/matheus3301/achat/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ContactService implements the contact and profile gRPC service.
type ContactService struct {
	profiles *profile.Service
	resolver *identity.Resolver
	settings *settings.Store
}

// NewContactService creates a new contact service. prefs may be nil.
func NewContactService(profiles *profile.Service, resolver *identity.Resolver, prefs *settings.Store) *ContactService {
	return &ContactService{profiles: profiles, resolver: resolver, settings: prefs}
}

func (s *ContactService) ListContacts(ctx context.Context, req *ListContactsRequest) (*ListContactsResponse, error) {
	sort := store.ContactSort(req.Sort)
	if sort == "" {
		sort = contactSort(ctx, s.settings)
	}
	users, err := s.profiles.Contacts(ctx, req.Search, sort)
	if err != nil {
		return nil, toStatus("list contacts", err)
	}
	out := make([]User, 0, len(users))
	for i := range users {
		out = append(out, userFromStore(&users[i]))
	}
	return &ListContactsResponse{Contacts: out}, nil
}

func (s *ContactService) GetProfile(ctx context.Context, req *ProfileRequest) (*ProfileResponse, error) {
	if req.UserID == "" {
		u, err := s.profiles.Current(ctx)
		if err != nil {
			return nil, toStatus("get profile", err)
		}
		return &ProfileResponse{User: userFromStore(u)}, nil
	}
	p, err := s.profiles.Peer(ctx, req.UserID)
	if err != nil {
		return nil, toStatus("get profile", err)
	}
	return &ProfileResponse{User: userFromProfile(p)}, nil
}

func (s *ContactService) UpdateProfile(ctx context.Context, req *UpdateProfileRequest) (*ProfileResponse, error) {
	u, err := s.profiles.UpdateCurrent(ctx, profile.Update{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
		About:       req.About,
		Birthdate:   req.Birthdate,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		return nil, toStatus("update profile", err)
	}
	return &ProfileResponse{User: userFromStore(u)}, nil
}

func (s *ContactService) SetContact(ctx context.Context, req *SetContactRequest) (*Empty, error) {
	if req.UserID == "" {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "set contact: empty user id")
	}
	var err error
	if req.Contact {
		err = s.resolver.MarkAsContact(ctx, req.UserID)
	} else {
		err = s.resolver.UnmarkAsContact(ctx, req.UserID)
	}
	if err != nil {
		return nil, toStatus("set contact", err)
	}
	return &Empty{}, nil
}

func (s *ContactService) SetPresence(ctx context.Context, req *SetPresenceRequest) (*Empty, error) {
	p, err := store.ParsePresence(req.Presence)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "set presence: %v", err)
	}
	if err := s.profiles.SetPresence(ctx, p); err != nil {
		return nil, toStatus("set presence", err)
	}
	return &Empty{}, nil
}

func (s *ContactService) SetCustomStatus(ctx context.Context, req *SetCustomStatusRequest) (*Empty, error) {
	if err := s.profiles.SetCustomStatus(ctx, req.Emoji, req.Text); err != nil {
		return nil, toStatus("set custom status", err)
	}
	return &Empty{}, nil
}
