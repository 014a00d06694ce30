// Package gateway implements remote.Client against the HTTP/JSON history
// gateway that fronts the platform session.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/remote"
)

// Config holds gateway connection settings.
type Config struct {
	BaseURL string
	Token   string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Client talks to the gateway over HTTP.
type Client struct {
	http *resty.Client
}

var _ remote.Client = (*Client)(nil)

// New creates a gateway client.
func New(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "chatfetch/1.0")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	if cfg.Token != "" {
		c.SetAuthToken(cfg.Token)
	}
	return &Client{http: c}
}

// ListConversations returns every conversation the account can read.
func (c *Client) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	var out conversationsResponse
	if err := c.get(ctx, "/v1/conversations", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	convs := make([]domain.Conversation, 0, len(out.Conversations))
	for _, dto := range out.Conversations {
		convs = append(convs, dto.toDomain())
	}
	return convs, nil
}

// ResolveConversation looks up one conversation.
func (c *Client) ResolveConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var out conversationDTO
	err := c.get(ctx, "/v1/conversations/{id}",
		map[string]string{"id": strconv.FormatInt(id, 10)}, nil, &out)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation %d: %w", id, err)
	}
	conv := out.toDomain()
	return &conv, nil
}

// ListMessages returns one newest-first page of history older than beforeID.
func (c *Client) ListMessages(ctx context.Context, conversationID, beforeID int64, pageSize int) (remote.Page, error) {
	query := map[string]string{"limit": strconv.Itoa(pageSize)}
	if beforeID > 0 {
		query["before_id"] = strconv.FormatInt(beforeID, 10)
	}

	var out messagesResponse
	err := c.get(ctx, "/v1/conversations/{id}/messages",
		map[string]string{"id": strconv.FormatInt(conversationID, 10)}, query, &out)
	if err != nil {
		return remote.Page{}, fmt.Errorf("list messages of %d: %w", conversationID, err)
	}

	page := remote.Page{
		Messages: make([]domain.Message, 0, len(out.Messages)),
		HasMore:  out.HasMore,
	}
	for _, dto := range out.Messages {
		page.Messages = append(page.Messages, dto.toDomain(conversationID))
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, path string, pathParams, query map[string]string, result any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetQueryParams(query).
		SetResult(result).
		SetError(&errorResponse{}).
		Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if resp != nil && resp.RawResponse != nil {
			// The gateway answered but the body did not decode.
			return fmt.Errorf("%w: gateway status %d: %w", remote.ErrProtocol, resp.StatusCode(), err)
		}
		// Timeouts, resets and refused connections are all worth another try.
		return remote.Transient(err, 0)
	}
	if resp.IsError() {
		return classify(resp)
	}
	return nil
}

// classify maps an HTTP error response onto the remote error taxonomy.
func classify(resp *resty.Response) error {
	msg := resp.Status()
	if e, ok := resp.Error().(*errorResponse); ok && e.Error != "" {
		msg = e.Error
	}
	cause := fmt.Errorf("gateway status %d: %s", resp.StatusCode(), msg)

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %w", remote.ErrConversationNotFound, cause)
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusGone:
		return remote.Permanent(cause)
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return remote.Transient(cause, parseRetryAfter(resp.Header().Get("Retry-After"), time.Now()))
	case code >= 400:
		return fmt.Errorf("%w: %w", remote.ErrRejected, cause)
	}
	return fmt.Errorf("%w: %w", remote.ErrProtocol, cause)
}

// parseRetryAfter accepts delta-seconds or an HTTP-date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
