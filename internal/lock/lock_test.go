package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sessionDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "work")
}

func TestAcquireRecordsHolder(t *testing.T) {
	dir := sessionDir(t)

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	h := l.Holder()
	if h.PID != os.Getpid() || h.Session != "work" || h.Started.IsZero() {
		t.Errorf("Holder() = %+v", h)
	}
	if got := readHolder(filepath.Join(dir, fileName)); got.PID != h.PID || got.Session != h.Session || !got.Started.Equal(h.Started) {
		t.Errorf("lock file holds %+v, want %+v", got, h)
	}
}

func TestSecondAcquireNamesHolder(t *testing.T) {
	dir := sessionDir(t)

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	defer func() { _ = l.Release() }()

	_, err = Acquire(dir)
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected *HeldError, got %T: %v", err, err)
	}
	if held.PID != os.Getpid() || held.Session != "work" {
		t.Errorf("HeldError holder = %+v", held.Holder)
	}
	for _, want := range []string{`session "work"`, "pid ", "since ", fileName} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}

	dir := sessionDir(t)
	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	for i := range 2 {
		if err := l.Release(); err != nil {
			t.Errorf("Release() #%d error = %v", i+1, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, fileName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("lock file still present after Release: %v", err)
	}

	// The session can be taken again.
	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() after Release error = %v", err)
	}
	_ = again.Release()
}

func TestInspect(t *testing.T) {
	dir := sessionDir(t)

	if _, held := Inspect(dir); held {
		t.Error("Inspect() reports a lock before Acquire")
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Error("Inspect() created the session directory")
	}

	l, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	h, held := Inspect(dir)
	if !held || h.PID != os.Getpid() || h.Session != "work" {
		t.Errorf("Inspect() = %+v, %v", h, held)
	}

	_ = l.Release()
	if _, held := Inspect(dir); held {
		t.Error("Inspect() reports a lock after Release")
	}
}

func TestReadHolderToleratesOldFormats(t *testing.T) {
	path := filepath.Join(t.TempDir(), fileName)
	tests := []struct {
		content string
		want    Holder
	}{
		{"pid=42\ntime=2026-01-02T03:04:05Z\n", Holder{PID: 42}},
		{"pid=7\nsession=main\nstarted=2026-01-02T03:04:05Z\n", Holder{PID: 7, Session: "main", Started: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}},
		{"garbage", Holder{}},
		{"", Holder{}},
	}
	for _, tt := range tests {
		if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
			t.Fatal(err)
		}
		if got := readHolder(path); !got.Started.Equal(tt.want.Started) || got.PID != tt.want.PID || got.Session != tt.want.Session {
			t.Errorf("readHolder(%q) = %+v, want %+v", tt.content, got, tt.want)
		}
	}
}
