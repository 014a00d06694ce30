package api

import (
	"context"

	"google.golang.org/grpc"
)

// Full method names of the chatfetch.v1 services.
const (
	ingestServiceName = "chatfetch.v1.Ingest"
	queryServiceName  = "chatfetch.v1.Query"

	methodIngestOne         = "/" + ingestServiceName + "/IngestOne"
	methodIngestAll         = "/" + ingestServiceName + "/IngestAll"
	methodAttachMedia       = "/" + ingestServiceName + "/AttachMedia"
	methodWatchEvents       = "/" + ingestServiceName + "/WatchEvents"
	methodGetConversation   = "/" + queryServiceName + "/GetConversation"
	methodFindConversations = "/" + queryServiceName + "/FindConversations"
	methodFindMessages      = "/" + queryServiceName + "/FindMessages"
	methodStats             = "/" + queryServiceName + "/Stats"
)

// IngestServer is the server API of chatfetch.v1.Ingest.
type IngestServer interface {
	IngestOne(context.Context, *IngestOneRequest) (*IngestOneResponse, error)
	IngestAll(context.Context, *IngestAllRequest) (*IngestAllResponse, error)
	AttachMedia(context.Context, *AttachMediaRequest) (*AttachMediaResponse, error)
	WatchEvents(*WatchEventsRequest, EventStream) error
}

// QueryServer is the server API of chatfetch.v1.Query.
type QueryServer interface {
	GetConversation(context.Context, *GetConversationRequest) (*GetConversationResponse, error)
	FindConversations(context.Context, *FindConversationsRequest) (*FindConversationsResponse, error)
	FindMessages(context.Context, *FindMessagesRequest) (*FindMessagesResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*EventEnvelope) error
	Context() context.Context
}

// RegisterIngestServer registers srv on s.
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&IngestServiceDesc, srv)
}

// RegisterQueryServer registers srv on s.
func RegisterQueryServer(s grpc.ServiceRegistrar, srv QueryServer) {
	s.RegisterService(&QueryServiceDesc, srv)
}

// IngestServiceDesc describes chatfetch.v1.Ingest.
var IngestServiceDesc = grpc.ServiceDesc{
	ServiceName: ingestServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IngestOne", Handler: unary(methodIngestOne, IngestServer.IngestOne)},
		{MethodName: "IngestAll", Handler: unary(methodIngestAll, IngestServer.IngestAll)},
		{MethodName: "AttachMedia", Handler: unary(methodAttachMedia, IngestServer.AttachMedia)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
}

// QueryServiceDesc describes chatfetch.v1.Query.
var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: queryServiceName,
	HandlerType: (*QueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetConversation", Handler: unary(methodGetConversation, QueryServer.GetConversation)},
		{MethodName: "FindConversations", Handler: unary(methodFindConversations, QueryServer.FindConversations)},
		{MethodName: "FindMessages", Handler: unary(methodFindMessages, QueryServer.FindMessages)},
		{MethodName: "Stats", Handler: unary(methodStats, QueryServer.Stats)},
	},
}

// unary adapts a server method to grpc.MethodHandler, decoding the request
// and running the server's interceptor chain.
func unary[S, Req, Resp any](method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(IngestServer).WatchEvents(in, &eventStream{stream})
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *EventEnvelope) error {
	return s.ServerStream.SendMsg(e)
}
