package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client calls a daemon's Ingest and Query services.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	return NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// NewClient connects to target. Calls are always JSON-encoded.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)))
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy reports whether the daemon answers health checks as serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{},
		grpc.CallContentSubtype("proto"))
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) IngestOne(ctx context.Context, req *IngestOneRequest) (*IngestOneResponse, error) {
	return invoke[IngestOneResponse](ctx, c, methodIngestOne, req)
}

func (c *Client) IngestAll(ctx context.Context, req *IngestAllRequest) (*IngestAllResponse, error) {
	return invoke[IngestAllResponse](ctx, c, methodIngestAll, req)
}

func (c *Client) AttachMedia(ctx context.Context, req *AttachMediaRequest) error {
	_, err := invoke[AttachMediaResponse](ctx, c, methodAttachMedia, req)
	return err
}

func (c *Client) GetConversation(ctx context.Context, req *GetConversationRequest) (*GetConversationResponse, error) {
	return invoke[GetConversationResponse](ctx, c, methodGetConversation, req)
}

func (c *Client) FindConversations(ctx context.Context, req *FindConversationsRequest) (*FindConversationsResponse, error) {
	return invoke[FindConversationsResponse](ctx, c, methodFindConversations, req)
}

func (c *Client) FindMessages(ctx context.Context, req *FindMessagesRequest) (*FindMessagesResponse, error) {
	return invoke[FindMessagesResponse](ctx, c, methodFindMessages, req)
}

func (c *Client) Stats(ctx context.Context, req *StatsRequest) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c, methodStats, req)
}

// WatchEvents streams sync events until ctx is done or the daemon ends the
// stream. A stream failure is yielded once as the last element.
func (c *Client) WatchEvents(ctx context.Context, req *WatchEventsRequest) iter.Seq2[*EventEnvelope, error] {
	return func(yield func(*EventEnvelope, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := c.conn.NewStream(ctx, &IngestServiceDesc.Streams[0], methodWatchEvents)
		if err != nil {
			yield(nil, err)
			return
		}
		if err := stream.SendMsg(req); err != nil {
			yield(nil, err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield(nil, err)
			return
		}
		for {
			evt := new(EventEnvelope)
			if err := stream.RecvMsg(evt); err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(evt, nil) {
				return
			}
		}
	}
}
