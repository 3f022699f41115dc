// Package testhelpers wires test logging.
package testhelpers

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/myrjola/periodize/internal/logging"
)

// NewLogger returns a debug level text logger writing to w, usually a Writer from NewWriter.
func NewLogger(w io.Writer) *slog.Logger {
	return logging.New(w, logging.FormatText, slog.LevelDebug)
}

// Writer forwards writes to t.Log so that logs show up only for failing tests.
type Writer struct {
	t    testing.TB
	mu   sync.Mutex
	done bool
}

// NewWriter returns a Writer for t. Writes after the test has finished are dropped because t.Log panics then,
// e.g. when a background goroutine logs while the database closes.
func NewWriter(t testing.TB) *Writer {
	w := &Writer{t: t, mu: sync.Mutex{}, done: false}
	t.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})
	return w
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return len(p), nil
	}
	if out := strings.TrimSuffix(string(p), "\n"); out != "" {
		w.t.Helper()
		w.t.Log(out)
	}
	return len(p), nil
}
