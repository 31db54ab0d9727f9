package trove

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/metrics"
	"github.com/trove-io/trove/pkg/perfmon"
	"github.com/trove-io/trove/pkg/types"
)

// OpID identifies one posted operation. Never recycled while its record
// remains unreaped.
type OpID uint64

// opFunc is the blocking backing-store call a worker runs.
type opFunc func() (interface{}, error)

type opRecord struct {
	done   bool
	result interface{}
	err    error
}

// Queue is a bounded MPMC queue of pending Store operations, drained by
// a fixed-size worker pool. Completion order is arbitrary; callers poll
// Test(op_id) and must not assume FIFO.
type Queue struct {
	store *Store

	work chan queuedOp

	mu      sync.Mutex
	records map[OpID]*opRecord

	nextID atomic.Uint64

	wg      sync.WaitGroup
	stopCh  chan struct{}
	logger  zerolog.Logger
	perf    *perfmon.Recorder
}

// AttachPerfmon feeds this queue's completed op byte/metadata counts
// into rec, in addition to the Prometheus metrics it always records.
// Not required; a Queue with no recorder attached just skips this.
func (q *Queue) AttachPerfmon(rec *perfmon.Recorder) {
	q.perf = rec
}

type queuedOp struct {
	id OpID
	fn opFunc
}

// NewQueue starts workers worker goroutines draining depth-capacity of
// queued ops against store.
func NewQueue(store *Store, workers, depth int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	q := &Queue{
		store:   store,
		work:    make(chan queuedOp, depth),
		records: make(map[OpID]*opRecord),
		stopCh:  make(chan struct{}),
		logger:  log.WithComponent("trove.opqueue"),
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.runWorker()
	}
	return q
}

// Close stops accepting new work and waits for in-flight ops to finish.
func (q *Queue) Close() {
	close(q.stopCh)
	q.wg.Wait()
}

func (q *Queue) runWorker() {
	defer q.wg.Done()
	for {
		select {
		case op := <-q.work:
			result, err := op.fn()
			q.mu.Lock()
			if rec, ok := q.records[op.id]; ok {
				rec.done = true
				rec.result = result
				rec.err = err
			}
			q.mu.Unlock()
		case <-q.stopCh:
			return
		}
	}
}

// post enqueues fn under opName, timing it into TroveOpLatency and
// counting its outcome into TroveOpsTotal once it completes. A failing
// op is logged against h so a handle's op history can be traced across
// workers.
func (q *Queue) post(opName string, h types.Handle, fn opFunc) OpID {
	id := OpID(q.nextID.Add(1))
	q.mu.Lock()
	q.records[id] = &opRecord{}
	q.mu.Unlock()

	timed := func() (interface{}, error) {
		timer := metrics.NewTimer()
		result, err := fn()
		timer.ObserveDurationVec(metrics.TroveOpLatency, opName)
		status := "ok"
		if err != nil {
			status = "error"
			log.WithHandle(q.logger, h.String()).Warn().
				Str("op", opName).Err(err).Msg("trove op failed")
		}
		metrics.TroveOpsTotal.WithLabelValues(opName, status).Inc()
		return result, err
	}

	select {
	case q.work <- queuedOp{id: id, fn: timed}:
	case <-q.stopCh:
		q.mu.Lock()
		q.records[id] = &opRecord{done: true, err: types.NewError(types.KindCancelled, "queue.post", nil)}
		q.mu.Unlock()
	}
	return id
}

// Test reports whether op_id has completed. The record is reaped on the
// first call that observes done == true; subsequent tests of the same
// op_id then report an unknown-operation error.
func (q *Queue) Test(id OpID) (done bool, result interface{}, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.records[id]
	if !ok {
		return false, nil, types.NewError(types.KindInvalidArgument, "queue.test", nil)
	}
	if !rec.done {
		return false, nil, nil
	}
	delete(q.records, id)
	return true, rec.result, rec.err
}

func (q *Queue) collLabel() string {
	return fmt.Sprintf("%d", q.store.fsID)
}

// PostDspaceCreate enqueues a dspace_create op.
func (q *Queue) PostDspaceCreate(h types.Handle, dsType types.DSType) OpID {
	return q.post("dspace_create", h, func() (interface{}, error) {
		err := q.store.DspaceCreate(h, dsType)
		if err == nil {
			metrics.LiveHandles.WithLabelValues(q.collLabel()).Inc()
		}
		return nil, err
	})
}

// PostDspaceRemove enqueues a dspace_remove op.
func (q *Queue) PostDspaceRemove(h types.Handle) OpID {
	return q.post("dspace_remove", h, func() (interface{}, error) {
		err := q.store.DspaceRemove(h)
		if err == nil {
			metrics.LiveHandles.WithLabelValues(q.collLabel()).Dec()
		}
		return nil, err
	})
}

// PostDspaceGetAttr enqueues a dspace_get_attr op.
func (q *Queue) PostDspaceGetAttr(h types.Handle) OpID {
	return q.post("dspace_get_attr", h, func() (interface{}, error) {
		return q.store.DspaceGetAttr(h)
	})
}

// PostKeyvalRead enqueues a keyval_read op.
func (q *Queue) PostKeyvalRead(h types.Handle, key []byte) OpID {
	return q.post("keyval_read", h, func() (interface{}, error) {
		v, err := q.store.KeyvalRead(h, key)
		if err == nil && q.perf != nil {
			q.perf.RecordMDRead()
		}
		return v, err
	})
}

// PostKeyvalWrite enqueues a keyval_write op.
func (q *Queue) PostKeyvalWrite(h types.Handle, key, value []byte, flags types.WriteFlags) OpID {
	return q.post("keyval_write", h, func() (interface{}, error) {
		err := q.store.KeyvalWrite(h, key, value, flags)
		if err == nil && q.perf != nil {
			q.perf.RecordMDWrite()
		}
		return nil, err
	})
}

// PostKeyvalRemove enqueues a keyval_remove op.
func (q *Queue) PostKeyvalRemove(h types.Handle, key []byte) OpID {
	return q.post("keyval_remove", h, func() (interface{}, error) {
		err := q.store.KeyvalRemove(h, key)
		if err == nil && q.perf != nil {
			q.perf.RecordMDWrite()
		}
		return nil, err
	})
}

// keyvalIterateResult bundles KeyvalIterate's two return values for
// delivery through the single-value opFunc result slot.
type keyvalIterateResult struct {
	Entries []types.KeyvalEntry
	Next    types.Cursor
}

// PostKeyvalIterate enqueues a keyval_iterate op.
func (q *Queue) PostKeyvalIterate(h types.Handle, cursor types.Cursor, maxCount int) OpID {
	return q.post("keyval_iterate", h, func() (interface{}, error) {
		entries, next, err := q.store.KeyvalIterate(h, cursor, maxCount)
		return keyvalIterateResult{Entries: entries, Next: next}, err
	})
}

// PostBstreamWriteList enqueues a bstream_write_list op.
func (q *Queue) PostBstreamWriteList(h types.Handle, mem []types.MemRegion, stream []types.StreamRegion, flags types.WriteFlags) OpID {
	return q.post("bstream_write_list", h, func() (interface{}, error) {
		n, err := q.store.BstreamWriteList(h, mem, stream, flags)
		if err == nil {
			metrics.BytesWritten.Add(float64(n))
			if q.perf != nil {
				q.perf.RecordWrite(int64(n))
			}
		}
		return n, err
	})
}

// PostBstreamReadList enqueues a bstream_read_list op.
func (q *Queue) PostBstreamReadList(h types.Handle, mem []types.MemRegion, stream []types.StreamRegion) OpID {
	return q.post("bstream_read_list", h, func() (interface{}, error) {
		n, err := q.store.BstreamReadList(h, mem, stream)
		if err == nil {
			metrics.BytesRead.Add(float64(n))
			if q.perf != nil {
				q.perf.RecordRead(int64(n))
			}
		}
		return n, err
	})
}
