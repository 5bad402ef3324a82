package testutil

import (
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// testWriter forwards log lines to t.Log until the test is cleaned up.
// Connection pumps can outlive a test by a few milliseconds and t.Log
// panics once the test has completed.
type testWriter struct {
	mu   sync.Mutex
	t    testing.TB
	done bool
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.done {
		w.t.Log(strings.TrimRight(string(p), "\n"))
	}

	return len(p), nil
}

func (w *testWriter) Sync() error { return nil }

func TestLogger(t testing.TB) *zap.SugaredLogger {
	w := &testWriter{t: t}
	t.Cleanup(func() {
		w.mu.Lock()
		w.done = true
		w.mu.Unlock()
	})

	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	core := zapcore.NewCore(enc, w, zapcore.DebugLevel)

	return zap.New(core).Sugar()
}
