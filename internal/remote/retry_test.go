package remote

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{40, time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWaitHonoursHint(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 10 * time.Second}

	tests := []struct {
		name    string
		attempt int
		hint    time.Duration
		want    time.Duration
	}{
		{"no hint", 1, 0, 100 * time.Millisecond},
		{"hint larger than backoff", 1, 3 * time.Second, 3 * time.Second},
		{"backoff larger than hint", 3, 100 * time.Millisecond, 400 * time.Millisecond},
		{"hint capped", 1, time.Hour, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Wait(tt.attempt, tt.hint); got != tt.want {
				t.Errorf("Wait(%d, %v) = %v, want %v", tt.attempt, tt.hint, got, tt.want)
			}
		})
	}
}

func TestAttemptsFloor(t *testing.T) {
	if got := (RetryPolicy{}).attempts(); got != 1 {
		t.Errorf("attempts() = %d, want 1", got)
	}
	if got := DefaultRetryPolicy().attempts(); got != 5 {
		t.Errorf("default attempts() = %d, want 5", got)
	}
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")
	transient := fmt.Errorf("list: %w", Transient(base, 2*time.Second))
	permanent := fmt.Errorf("list: %w", Permanent(base))

	if !IsTransient(transient) || IsPermanent(transient) {
		t.Error("wrapped transient error misclassified")
	}
	if !IsPermanent(permanent) || IsTransient(permanent) {
		t.Error("wrapped permanent error misclassified")
	}
	if got := RetryAfter(transient); got != 2*time.Second {
		t.Errorf("RetryAfter() = %v, want 2s", got)
	}
	if got := RetryAfter(permanent); got != 0 {
		t.Errorf("RetryAfter(permanent) = %v, want 0", got)
	}
	if !errors.Is(transient, base) || !errors.Is(permanent, base) {
		t.Error("classified errors should unwrap to the cause")
	}
}
