// Package lock keeps a single chatfetchd per session with an flock on the
// session's LOCK file. The file also records who holds it.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// Holder describes the daemon that owns a session lock.
type Holder struct {
	PID     int       `json:"pid"`
	Session string    `json:"session"`
	Started time.Time `json:"started"`
}

// HeldError is returned by Acquire when another daemon owns the session.
type HeldError struct {
	Holder
	Path string
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("chatfetchd already running for session %q (pid %d", e.Session, e.PID)
	if !e.Started.IsZero() {
		msg += ", since " + e.Started.Format(time.RFC3339)
	}
	return msg + "); lock file " + e.Path
}

// Lock is an acquired session lock.
type Lock struct {
	file   *os.File
	path   string
	holder Holder
}

// Acquire takes the exclusive lock of sessionDir, creating the directory if
// needed. It fails with *HeldError while another process holds it.
func Acquire(sessionDir string) (*Lock, error) {
	if err := os.MkdirAll(sessionDir, 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	path := filepath.Join(sessionDir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, &HeldError{Holder: readHolder(path), Path: path}
	}

	h := Holder{PID: os.Getpid(), Session: filepath.Base(sessionDir), Started: time.Now().UTC().Truncate(time.Second)}
	if err := writeHolder(f, h); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path, holder: h}, nil
}

// Holder returns what this lock recorded about the current process.
func (l *Lock) Holder() Holder {
	return l.holder
}

// Release removes the lock file and drops the lock. It is a no-op on a nil
// or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Inspect reports whether a live daemon holds the lock of sessionDir and who it
// is. It never creates the session directory or the lock file.
func Inspect(sessionDir string) (Holder, bool) {
	path := filepath.Join(sessionDir, fileName)
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return Holder{}, false
	}
	defer func() { _ = f.Close() }()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return readHolder(path), true
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return Holder{}, false
}

func writeHolder(f *os.File, h Holder) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nsession=%s\nstarted=%s\n", h.PID, h.Session, h.Started.Format(time.RFC3339))
	return err
}

// readHolder parses the key=value lines of a lock file. Unknown or missing
// keys are left at their zero value.
func readHolder(path string) Holder {
	data, _ := os.ReadFile(path)
	var h Holder
	for line := range strings.Lines(string(data)) {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "session":
			h.Session = value
		case "started":
			h.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h
}
