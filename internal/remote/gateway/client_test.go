package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheus3301/chatfetch/internal/domain"
	"github.com/matheus3301/chatfetch/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "secret", Timeout: 2 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestListMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conversations/42/messages", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("before_id"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{
			"messages": [
				{"id": 99, "from_id": 7, "date": 1700000000, "text": "hi", "reply_to_message_id": 98},
				{"id": 98, "from_id": 8, "date": 1699999999, "text": "", "media_type": "MessageMediaPhoto"}
			],
			"has_more": true
		}`)
	})

	page, err := c.ListMessages(context.Background(), 42, 100, 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)

	first := page.Messages[0]
	assert.Equal(t, int64(42), first.ConversationID)
	assert.Equal(t, int64(99), first.ID)
	assert.Equal(t, int64(1700000000000), first.Timestamp)
	assert.Equal(t, "hi", first.TextOrEmpty())
	require.NotNil(t, first.ReplyToID)
	assert.Equal(t, int64(98), *first.ReplyToID)
	assert.Equal(t, domain.MediaNone, first.MediaKind)

	second := page.Messages[1]
	assert.Nil(t, second.Text)
	assert.Equal(t, domain.MediaPhoto, second.MediaKind)
}

func TestListMessagesFromHead(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("before_id"))
		writeJSON(w, http.StatusOK, `{"messages": [], "has_more": false}`)
	})

	page, err := c.ListMessages(context.Background(), 1, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.False(t, page.HasMore)
}

func TestListConversations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"conversations": [
			{"id": 1, "title": "Alice", "type": "user"},
			{"id": 2, "title": "Go Nuts", "username": "golangnuts", "type": "megagroup", "participants_count": 900},
			{"id": 3, "title": "News", "type": "channel"}
		]}`)
	})

	convs, err := c.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 3)
	assert.Equal(t, domain.KindDirect, convs[0].Kind)
	assert.Equal(t, domain.KindGroup, convs[1].Kind)
	assert.Equal(t, "golangnuts", convs[1].Username)
	assert.Equal(t, 900, convs[1].ParticipantCount)
	assert.Equal(t, domain.KindBroadcast, convs[2].Kind)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		check      func(t *testing.T, err error)
	}{
		{"not found", http.StatusNotFound, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, remote.ErrConversationNotFound)
		}},
		{"forbidden", http.StatusForbidden, "", func(t *testing.T, err error) {
			assert.True(t, remote.IsPermanent(err))
		}},
		{"gone", http.StatusGone, "", func(t *testing.T, err error) {
			assert.True(t, remote.IsPermanent(err))
		}},
		{"rate limited", http.StatusTooManyRequests, "7", func(t *testing.T, err error) {
			assert.True(t, remote.IsTransient(err))
			assert.Equal(t, 7*time.Second, remote.RetryAfter(err))
		}},
		{"unavailable", http.StatusServiceUnavailable, "", func(t *testing.T, err error) {
			assert.True(t, remote.IsTransient(err))
			assert.Zero(t, remote.RetryAfter(err))
		}},
		{"bad request", http.StatusBadRequest, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, remote.ErrRejected)
			assert.False(t, remote.IsPermanent(err))
			assert.False(t, remote.IsTransient(err))
		}},
		{"unprocessable", http.StatusUnprocessableEntity, "", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, remote.ErrRejected)
			assert.False(t, remote.IsPermanent(err))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				writeJSON(w, tt.status, `{"error": "nope"}`)
			})
			_, err := c.ResolveConversation(context.Background(), 5)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestUndecodableResponseIsNotRetried(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, `{"messages": [{"id": "not a number"}]`)
	})

	_, err := c.ListMessages(context.Background(), 42, 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocol)
	assert.False(t, remote.IsTransient(err))
	assert.False(t, remote.IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.ListConversations(context.Background())
	require.Error(t, err)
	assert.True(t, remote.IsTransient(err))
}

func TestCancelledContextIsNotTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListConversations(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, remote.IsTransient(err))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
