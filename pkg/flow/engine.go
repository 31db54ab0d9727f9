package flow

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/metrics"
	"github.com/trove-io/trove/pkg/types"
)

// Config bounds one flow's memory footprint: at most BufferCount
// buffers of BufferSize bytes each are ever resident.
type Config struct {
	BufferCount int
	BufferSize  int
}

func (c Config) withDefaults() Config {
	if c.BufferCount <= 0 {
		c.BufferCount = 4
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64 * 1024
	}
	return c
}

// Engine runs flows under a shared configuration.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// New builds an Engine with the given buffer pool sizing.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults(), logger: log.WithComponent("flow")}
}

// chunk is one buffer's worth of the pipeline, tagged with its sequence
// number within the flow so ordering can be asserted even though a
// single producer/consumer pair already delivers chunks in order.
type chunk struct {
	seq  int
	data []byte
	n    int
	err  error
}

// Run pipelines total bytes from source to sink using a bounded pool of
// cfg buffers, overlapping the upstream read of buffer i+1 with the
// downstream write of buffer i. Cancelling ctx stops new reads from
// being posted; in-flight buffers still drain before Run returns.
func (e *Engine) Run(ctx context.Context, flowID string, source io.Reader, sink io.Writer, total int64) types.FlowResult {
	pool := newBufferPool(e.cfg.BufferCount, e.cfg.BufferSize)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readCh := make(chan chunk, e.cfg.BufferCount)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		defer close(readCh)
		var produced int64
		seq := 0
		for produced < total {
			if ctx.Err() != nil {
				return
			}
			buf, err := pool.acquire(ctx)
			if err != nil {
				return
			}
			want := int64(len(buf))
			if remaining := total - produced; want > remaining {
				want = remaining
			}
			n, err := io.ReadFull(source, buf[:want])
			seq++
			produced += int64(n)
			select {
			case readCh <- chunk{seq: seq, data: buf, n: n, err: err}:
			case <-ctx.Done():
				pool.release(buf)
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var bytesTransferred int64
	var stageErr error
	cancelled := false
	// failed latches on the first read or write error. Once set, no
	// further sink.Write calls happen even for chunks already buffered
	// in readCh at that point, so a write that would otherwise succeed
	// on a later, already-queued chunk can never extend bytesTransferred
	// past the point of the earliest failure.
	failed := false

	for c := range readCh {
		metrics.FlowBuffersInFlight.WithLabelValues(flowID).Inc()
		if c.err != nil && c.err != io.EOF && c.err != io.ErrUnexpectedEOF {
			if !failed {
				stageErr = c.err
				failed = true
				cancel()
			}
			pool.release(c.data)
			metrics.FlowBuffersInFlight.WithLabelValues(flowID).Dec()
			continue
		}
		if c.n > 0 && !failed {
			if _, err := sink.Write(c.data[:c.n]); err != nil {
				stageErr = err
				failed = true
				cancel()
			} else {
				bytesTransferred += int64(c.n)
				metrics.FlowBytesTransferred.Add(float64(c.n))
			}
		}
		pool.release(c.data)
		metrics.FlowBuffersInFlight.WithLabelValues(flowID).Dec()
	}
	wg.Wait()

	if ctx.Err() == context.Canceled && stageErr == nil {
		cancelled = true
	}

	result := types.FlowResult{BytesTransferred: bytesTransferred}
	switch {
	case stageErr != nil:
		result.State = types.FlowStateFailed
		result.Err = stageErr
		e.logger.Warn().Str("flow_id", flowID).Err(stageErr).
			Int64("bytes_transferred", bytesTransferred).Msg("flow failed")
	case cancelled:
		result.State = types.FlowStateCancelled
		metrics.FlowsCancelled.Inc()
		e.logger.Info().Str("flow_id", flowID).
			Int64("bytes_transferred", bytesTransferred).Msg("flow cancelled")
	default:
		result.State = types.FlowStateComplete
	}
	return result
}
