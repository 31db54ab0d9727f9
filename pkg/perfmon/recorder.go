package perfmon

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/trove-io/trove/pkg/log"
)

// Recorder accumulates counters between samples and periodically drains
// them into a Ring on a ticker, between Start and Stop.
type Recorder struct {
	ring     *Ring
	interval time.Duration

	readBytes    atomic.Int64
	writeBytes   atomic.Int64
	mdReadCount  atomic.Int64
	mdWriteCount atomic.Int64

	stopCh chan struct{}
	logger zerolog.Logger
}

// NewRecorder builds a Recorder sampling into ring every interval.
func NewRecorder(ring *Ring, interval time.Duration) *Recorder {
	return &Recorder{
		ring:     ring,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("perfmon"),
	}
}

// RecordRead accounts n bytes read from a bstream.
func (r *Recorder) RecordRead(n int64) { r.readBytes.Add(n) }

// RecordWrite accounts n bytes written to a bstream.
func (r *Recorder) RecordWrite(n int64) { r.writeBytes.Add(n) }

// RecordMDRead accounts one metadata (keyval) read.
func (r *Recorder) RecordMDRead() { r.mdReadCount.Add(1) }

// RecordMDWrite accounts one metadata (keyval) write.
func (r *Recorder) RecordMDWrite() { r.mdWriteCount.Add(1) }

// Start begins sampling on a ticker until Stop is called.
func (r *Recorder) Start() {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sample()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop halts sampling.
func (r *Recorder) Stop() {
	close(r.stopCh)
}

func (r *Recorder) sample() {
	e := r.ring.Append(Entry{
		StartTimeMS:  time.Now().UnixMilli(),
		ReadBytes:    r.readBytes.Swap(0),
		WriteBytes:   r.writeBytes.Swap(0),
		MDReadCount:  r.mdReadCount.Swap(0),
		MDWriteCount: r.mdWriteCount.Swap(0),
		Valid:        true,
	})
	r.logger.Debug().Int64("id", e.ID).Int64("read_bytes", e.ReadBytes).
		Int64("write_bytes", e.WriteBytes).Msg("perfmon sample")
}
