package api

import (
	"context"

	"google.golang.org/grpc"
)

// Stream receives server-streamed responses of type T.
type Stream[T any] struct {
	grpc.ClientStream
}

// Recv blocks for the next response. It returns io.EOF when the server ends the stream.
func (s *Stream[T]) Recv() (*T, error) {
	m := new(T)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func openStream[Resp any](ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.ServiceDesc, name string, in any, opts ...grpc.CallOption) (*Stream[Resp], error) {
	var sd *grpc.StreamDesc
	for i := range desc.Streams {
		if desc.Streams[i].StreamName == name {
			sd = &desc.Streams[i]
		}
	}
	st, err := cc.NewStream(ctx, sd, fullMethod(desc.ServiceName, name), opts...)
	if err != nil {
		return nil, err
	}
	if err := st.SendMsg(in); err != nil {
		return nil, err
	}
	if err := st.CloseSend(); err != nil {
		return nil, err
	}
	return &Stream[Resp]{ClientStream: st}, nil
}

// SessionClient calls the session service.
type SessionClient struct{ cc grpc.ClientConnInterface }

func NewSessionClient(cc grpc.ClientConnInterface) *SessionClient { return &SessionClient{cc: cc} }

func (c *SessionClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, fullMethod(sessionServiceName, "GetStatus"), &Empty{}, opts...)
}

func (c *SessionClient) GetSettings(ctx context.Context, opts ...grpc.CallOption) (*Settings, error) {
	return invoke[Settings](ctx, c.cc, fullMethod(sessionServiceName, "GetSettings"), &Empty{}, opts...)
}

func (c *SessionClient) UpdateSettings(ctx context.Context, in *UpdateSettingsRequest, opts ...grpc.CallOption) (*Settings, error) {
	return invoke[Settings](ctx, c.cc, fullMethod(sessionServiceName, "UpdateSettings"), in, opts...)
}

func (c *SessionClient) WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (*Stream[EventEnvelope], error) {
	return openStream[EventEnvelope](ctx, c.cc, &SessionServiceDesc, "WatchEvents", in, opts...)
}

// ChatClient calls the chat service.
type ChatClient struct{ cc grpc.ClientConnInterface }

func NewChatClient(cc grpc.ClientConnInterface) *ChatClient { return &ChatClient{cc: cc} }

func (c *ChatClient) ListChats(ctx context.Context, in *ListChatsRequest, opts ...grpc.CallOption) (*ListChatsResponse, error) {
	return invoke[ListChatsResponse](ctx, c.cc, fullMethod(chatServiceName, "ListChats"), in, opts...)
}

func (c *ChatClient) GetChat(ctx context.Context, in *ChatRequest, opts ...grpc.CallOption) (*ChatResponse, error) {
	return invoke[ChatResponse](ctx, c.cc, fullMethod(chatServiceName, "GetChat"), in, opts...)
}

func (c *ChatClient) OpenChat(ctx context.Context, in *OpenChatRequest, opts ...grpc.CallOption) (*OpenChatResponse, error) {
	return invoke[OpenChatResponse](ctx, c.cc, fullMethod(chatServiceName, "OpenChat"), in, opts...)
}

func (c *ChatClient) DeleteChat(ctx context.Context, in *ChatRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, fullMethod(chatServiceName, "DeleteChat"), in, opts...)
	return err
}

func (c *ChatClient) WatchChats(ctx context.Context, in *ListChatsRequest, opts ...grpc.CallOption) (*Stream[ListChatsResponse], error) {
	return openStream[ListChatsResponse](ctx, c.cc, &ChatServiceDesc, "WatchChats", in, opts...)
}

// MessageClient calls the message service.
type MessageClient struct{ cc grpc.ClientConnInterface }

func NewMessageClient(cc grpc.ClientConnInterface) *MessageClient { return &MessageClient{cc: cc} }

func (c *MessageClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, fullMethod(messageServiceName, "ListMessages"), in, opts...)
}

func (c *MessageClient) SendText(ctx context.Context, in *SendTextRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, fullMethod(messageServiceName, "SendText"), in, opts...)
}

func (c *MessageClient) SendFile(ctx context.Context, in *SendFileRequest, opts ...grpc.CallOption) (*SendResponse, error) {
	return invoke[SendResponse](ctx, c.cc, fullMethod(messageServiceName, "SendFile"), in, opts...)
}

func (c *MessageClient) DownloadFile(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*DownloadResponse, error) {
	return invoke[DownloadResponse](ctx, c.cc, fullMethod(messageServiceName, "DownloadFile"), in, opts...)
}

func (c *MessageClient) RetryFailed(ctx context.Context, opts ...grpc.CallOption) (*RetryResponse, error) {
	return invoke[RetryResponse](ctx, c.cc, fullMethod(messageServiceName, "RetryFailed"), &Empty{}, opts...)
}

func (c *MessageClient) WatchMessages(ctx context.Context, in *WatchMessagesRequest, opts ...grpc.CallOption) (*Stream[ConversationSnapshot], error) {
	return openStream[ConversationSnapshot](ctx, c.cc, &MessageServiceDesc, "WatchMessages", in, opts...)
}

// ContactClient calls the contact service.
type ContactClient struct{ cc grpc.ClientConnInterface }

func NewContactClient(cc grpc.ClientConnInterface) *ContactClient { return &ContactClient{cc: cc} }

func (c *ContactClient) ListContacts(ctx context.Context, in *ListContactsRequest, opts ...grpc.CallOption) (*ListContactsResponse, error) {
	return invoke[ListContactsResponse](ctx, c.cc, fullMethod(contactServiceName, "ListContacts"), in, opts...)
}

func (c *ContactClient) GetProfile(ctx context.Context, in *ProfileRequest, opts ...grpc.CallOption) (*ProfileResponse, error) {
	return invoke[ProfileResponse](ctx, c.cc, fullMethod(contactServiceName, "GetProfile"), in, opts...)
}

func (c *ContactClient) UpdateProfile(ctx context.Context, in *UpdateProfileRequest, opts ...grpc.CallOption) (*ProfileResponse, error) {
	return invoke[ProfileResponse](ctx, c.cc, fullMethod(contactServiceName, "UpdateProfile"), in, opts...)
}

func (c *ContactClient) SetContact(ctx context.Context, in *SetContactRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, fullMethod(contactServiceName, "SetContact"), in, opts...)
	return err
}

func (c *ContactClient) SetPresence(ctx context.Context, in *SetPresenceRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, fullMethod(contactServiceName, "SetPresence"), in, opts...)
	return err
}

func (c *ContactClient) SetCustomStatus(ctx context.Context, in *SetCustomStatusRequest, opts ...grpc.CallOption) error {
	_, err := invoke[Empty](ctx, c.cc, fullMethod(contactServiceName, "SetCustomStatus"), in, opts...)
	return err
}
