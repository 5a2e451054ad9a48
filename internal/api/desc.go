package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	sessionServiceName = "achat.v1.SessionService"
	chatServiceName    = "achat.v1.ChatService"
	messageServiceName = "achat.v1.MessageService"
	contactServiceName = "achat.v1.ContactService"
)

func fullMethod(service, method string) string {
	return "/" + service + "/" + method
}

// unary builds the descriptor of a request/response method whose handler is
// fn applied to the registered implementation S.
func unary[S, Req, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(service, method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

// serverStream builds the descriptor of a method that takes one request and
// streams responses until the client goes away.
func serverStream[S, Req any](method string, fn func(S, *Req, grpc.ServerStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    method,
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return fn(srv.(S), in, stream)
		},
	}
}

// SessionServer is implemented by *SessionService.
type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	GetSettings(context.Context, *Empty) (*Settings, error)
	UpdateSettings(context.Context, *UpdateSettingsRequest) (*Settings, error)
	WatchEvents(*WatchEventsRequest, grpc.ServerStream) error
}

// SessionServiceDesc describes the session service.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(sessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(sessionServiceName, "GetSettings", SessionServer.GetSettings),
		unary(sessionServiceName, "UpdateSettings", SessionServer.UpdateSettings),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchEvents", SessionServer.WatchEvents),
	},
}

// ChatServer is implemented by *ChatService.
type ChatServer interface {
	ListChats(context.Context, *ListChatsRequest) (*ListChatsResponse, error)
	GetChat(context.Context, *ChatRequest) (*ChatResponse, error)
	OpenChat(context.Context, *OpenChatRequest) (*OpenChatResponse, error)
	DeleteChat(context.Context, *ChatRequest) (*Empty, error)
	WatchChats(*ListChatsRequest, grpc.ServerStream) error
}

// ChatServiceDesc describes the chat service.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: chatServiceName,
	HandlerType: (*ChatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(chatServiceName, "ListChats", ChatServer.ListChats),
		unary(chatServiceName, "GetChat", ChatServer.GetChat),
		unary(chatServiceName, "OpenChat", ChatServer.OpenChat),
		unary(chatServiceName, "DeleteChat", ChatServer.DeleteChat),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchChats", ChatServer.WatchChats),
	},
}

// MessageServer is implemented by *MessageService.
type MessageServer interface {
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SendText(context.Context, *SendTextRequest) (*SendResponse, error)
	SendFile(context.Context, *SendFileRequest) (*SendResponse, error)
	DownloadFile(context.Context, *MessageRequest) (*DownloadResponse, error)
	RetryFailed(context.Context, *Empty) (*RetryResponse, error)
	WatchMessages(*WatchMessagesRequest, grpc.ServerStream) error
}

// MessageServiceDesc describes the message service.
var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: messageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(messageServiceName, "ListMessages", MessageServer.ListMessages),
		unary(messageServiceName, "SendText", MessageServer.SendText),
		unary(messageServiceName, "SendFile", MessageServer.SendFile),
		unary(messageServiceName, "DownloadFile", MessageServer.DownloadFile),
		unary(messageServiceName, "RetryFailed", MessageServer.RetryFailed),
	},
	Streams: []grpc.StreamDesc{
		serverStream("WatchMessages", MessageServer.WatchMessages),
	},
}

// ContactServer is implemented by *ContactService.
type ContactServer interface {
	ListContacts(context.Context, *ListContactsRequest) (*ListContactsResponse, error)
	GetProfile(context.Context, *ProfileRequest) (*ProfileResponse, error)
	UpdateProfile(context.Context, *UpdateProfileRequest) (*ProfileResponse, error)
	SetContact(context.Context, *SetContactRequest) (*Empty, error)
	SetPresence(context.Context, *SetPresenceRequest) (*Empty, error)
	SetCustomStatus(context.Context, *SetCustomStatusRequest) (*Empty, error)
}

// ContactServiceDesc describes the contact service.
var ContactServiceDesc = grpc.ServiceDesc{
	ServiceName: contactServiceName,
	HandlerType: (*ContactServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(contactServiceName, "ListContacts", ContactServer.ListContacts),
		unary(contactServiceName, "GetProfile", ContactServer.GetProfile),
		unary(contactServiceName, "UpdateProfile", ContactServer.UpdateProfile),
		unary(contactServiceName, "SetContact", ContactServer.SetContact),
		unary(contactServiceName, "SetPresence", ContactServer.SetPresence),
		unary(contactServiceName, "SetCustomStatus", ContactServer.SetCustomStatus),
	},
}

// Register adds every service implementation to srv.
func Register(srv grpc.ServiceRegistrar, sess SessionServer, chats ChatServer, msgs MessageServer, contacts ContactServer) {
	srv.RegisterService(&SessionServiceDesc, sess)
	srv.RegisterService(&ChatServiceDesc, chats)
	srv.RegisterService(&MessageServiceDesc, msgs)
	srv.RegisterService(&ContactServiceDesc, contacts)
}
