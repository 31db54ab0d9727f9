package flow

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/trove-io/trove/pkg/types"
)

// TestFlowScenarioS5Backpressure is scenario S5. The engine only ever
// allocates buffer_count*buffer_size bytes total (TestBufferPoolBoundsOutstanding
// covers the blocking mechanism that enforces this); this test exercises
// the full pipeline end to end at that configuration and checks the
// final byte count.
func TestFlowScenarioS5Backpressure(t *testing.T) {
	const total = 64 * 1024 * 1024
	const bufSize = 1024 * 1024
	const bufCount = 2

	src := make([]byte, total)
	for i := range src {
		src[i] = byte(i)
	}

	var dst bytes.Buffer
	engine := New(Config{BufferCount: bufCount, BufferSize: bufSize})

	result := engine.Run(context.Background(), "s5", bytes.NewReader(src), &dst, total)

	if result.State != types.FlowStateComplete {
		t.Fatalf("expected complete, got %v (err=%v)", result.State, result.Err)
	}
	if result.BytesTransferred != total {
		t.Fatalf("bytes_transferred = %d, want %d", result.BytesTransferred, total)
	}
	if !bytes.Equal(dst.Bytes(), src) {
		t.Fatal("transferred bytes do not match source")
	}
}

// failingWriter fails after n successful bytes.
type failingWriter struct {
	limit   int
	written int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.limit {
		return 0, errors.New("downstream write failed")
	}
	w.written += len(p)
	return len(p), nil
}

// TestFlowPartialFailurePrefix is property 8's failure branch:
// bytes_transferred <= requested and reflects the largest durable prefix.
func TestFlowPartialFailurePrefix(t *testing.T) {
	const total = 10 * 1024 * 1024
	const bufSize = 1024 * 1024

	src := bytes.NewReader(make([]byte, total))
	sink := &failingWriter{limit: 3 * 1024 * 1024}

	engine := New(Config{BufferCount: 2, BufferSize: bufSize})
	result := engine.Run(context.Background(), "fail", src, sink, total)

	if result.State != types.FlowStateFailed {
		t.Fatalf("expected failed, got %v", result.State)
	}
	if result.BytesTransferred > total {
		t.Fatalf("bytes_transferred %d exceeds requested %d", result.BytesTransferred, total)
	}
	if result.BytesTransferred != int64(sink.written) {
		t.Fatalf("bytes_transferred %d does not match durable prefix %d", result.BytesTransferred, sink.written)
	}
}

// nonMonotonicWriter fails exactly once, at the write starting at
// failAt, then succeeds on every write before and after it — modeling a
// sink whose failure isn't simply "beyond some byte," so a chunk queued
// before the failure is observed can still reach the sink afterward.
type nonMonotonicWriter struct {
	failAt int
	offset int
}

func (w *nonMonotonicWriter) Write(p []byte) (int, error) {
	start := w.offset
	w.offset += len(p)
	if start == w.failAt {
		return 0, errors.New("transient downstream failure")
	}
	return len(p), nil
}

// TestFlowNonMonotonicFailureStopsWrites covers property 8 against a
// sink that recovers after failing: once the consumer observes a write
// error it must not write any chunk still sitting in readCh, even one
// whose write would otherwise succeed, or bytes_transferred stops
// reflecting the largest prefix that was durable at both ends.
func TestFlowNonMonotonicFailureStopsWrites(t *testing.T) {
	const total = 6 * 1024 * 1024
	const bufSize = 1024 * 1024
	const failAt = 2 * 1024 * 1024

	src := bytes.NewReader(make([]byte, total))
	sink := &nonMonotonicWriter{failAt: failAt}

	engine := New(Config{BufferCount: 4, BufferSize: bufSize})
	result := engine.Run(context.Background(), "nonmono", src, sink, total)

	if result.State != types.FlowStateFailed {
		t.Fatalf("expected failed, got %v", result.State)
	}
	if result.BytesTransferred != int64(failAt) {
		t.Fatalf("bytes_transferred %d, want %d: a write past the failure point must not count",
			result.BytesTransferred, failAt)
	}
}

// slowReader paces each Read so a cancellation fired shortly after Run
// starts is guaranteed to land before the transfer would otherwise
// finish.
type slowReader struct {
	r     io.Reader
	delay time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.r.Read(p)
}

func TestFlowCancellation(t *testing.T) {
	const total = 8 * 1024 * 1024
	src := &slowReader{r: bytes.NewReader(make([]byte, total)), delay: 5 * time.Millisecond}
	var dst bytes.Buffer

	engine := New(Config{BufferCount: 1, BufferSize: 64 * 1024})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	result := engine.Run(ctx, "cancel", src, &dst, total)

	if result.State != types.FlowStateCancelled {
		t.Fatalf("expected cancelled, got %v", result.State)
	}
	if result.BytesTransferred > total {
		t.Fatalf("bytes_transferred %d exceeds requested %d", result.BytesTransferred, total)
	}
	if result.BytesTransferred >= total {
		t.Fatalf("expected a partial transfer, got full %d bytes", result.BytesTransferred)
	}
}
