package live

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cwbudde/algo-modular/sink"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestRuntime(t *testing.T, host sink.Host) *Runtime {
	t.Helper()
	opts := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithFormat(sink.Format{SampleRate: 48000, Channels: 2, BlockSize: 64}),
	}
	if host != nil {
		opts = append(opts, WithHost(host))
	}
	r := New(opts...)
	r.Start()
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func mustDo(t *testing.T, r *Runtime, cmds ...Command) {
	t.Helper()
	ctx := testContext(t)
	for _, c := range cmds {
		if err := r.Do(ctx, c); err != nil {
			t.Fatalf("%T: %v", c, err)
		}
	}
}

func energy(buf []float32) float64 {
	var e float64
	for _, v := range buf {
		e += float64(v * v)
	}
	return e
}

func strptr(s string) *string {
	return &s
}
