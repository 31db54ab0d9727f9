package scheduler

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/metrics"
	"github.com/trove-io/trove/pkg/types"
)

// waiter is one entry in a handle's FIFO queue.
type waiter struct {
	id       types.SchedID
	handle   types.Handle
	mode     types.Mode
	opRef    any
	capToken []byte

	ready   bool
	holding bool

	timer *time.Timer
	done  chan types.CompletionMsg
}

// handleQueue tracks the FIFO waiters and currently-ready holders for
// one handle.
type handleQueue struct {
	waiters  *list.List // *waiter, arrival order
	holders  map[types.SchedID]*waiter
	exclusive bool
}

// Scheduler is the per-handle token scheduler.
type Scheduler struct {
	mu      sync.Mutex
	queues  map[types.Handle]*handleQueue
	waiters map[types.SchedID]*waiter // all live entries, any handle
	nextID  atomic.Uint64
	logger  zerolog.Logger
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		queues:  make(map[types.Handle]*handleQueue),
		waiters: make(map[types.SchedID]*waiter),
		logger:  log.WithComponent("scheduler"),
	}
}

// Post enqueues a request for handle under mode. It returns a SchedID
// immediately and a channel that receives exactly one CompletionMsg once
// the token is ready, times out, or is cancelled. req.Capability is kept
// only for the forced-release audit log.
func (s *Scheduler) Post(req types.PostRequest) (types.SchedID, <-chan types.CompletionMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := types.SchedID(s.nextID.Add(1))
	w := &waiter{
		id:       id,
		handle:   req.Handle,
		mode:     req.Mode,
		opRef:    req.UserRef,
		capToken: req.Capability,
		done:     make(chan types.CompletionMsg, 1),
	}

	q, ok := s.queues[req.Handle]
	if !ok {
		q = &handleQueue{waiters: list.New(), holders: make(map[types.SchedID]*waiter)}
		s.queues[req.Handle] = q
	}
	q.waiters.PushBack(w)
	s.waiters[id] = w
	metrics.SchedulerWaiters.WithLabelValues(string(req.Mode)).Inc()

	if req.DeadlineMS > 0 {
		w.timer = time.AfterFunc(time.Duration(req.DeadlineMS)*time.Millisecond, func() {
			s.expire(id)
		})
	}

	s.wake(q, req.Handle)
	return id, w.done
}

// canAdmit reports whether mode may become ready given q's current
// holders, independent of FIFO order (FIFO order is enforced by the
// caller only ever considering the queue front).
func (s *Scheduler) canAdmit(q *handleQueue, mode types.Mode) bool {
	if q.exclusive {
		return false
	}
	switch mode {
	case types.ModeExclusive:
		return len(q.holders) == 0
	case types.ModeShared, types.ModeBypass:
		return true
	default:
		return false
	}
}

func (s *Scheduler) grant(q *handleQueue, w *waiter) {
	w.ready = true
	w.holding = true
	q.holders[w.id] = w
	if w.mode == types.ModeExclusive {
		q.exclusive = true
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	metrics.SchedulerWaiters.WithLabelValues(string(w.mode)).Dec()
	w.done <- types.CompletionMsg{SchedID: w.id, Status: types.StatusReady}
}

// Release relinquishes the token held by id and applies the wake policy:
// if the new queue front is exclusive, wake only it; if shared, wake it
// and every contiguous trailing shared waiter as one cohort; bypass
// waiters are woken whenever no exclusive token is held.
func (s *Scheduler) Release(id types.SchedID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release(id)
}

func (s *Scheduler) release(id types.SchedID) {
	w, ok := s.waiters[id]
	if !ok || !w.holding {
		return
	}
	q := s.queues[w.handle]
	if q == nil {
		return
	}

	delete(q.holders, id)
	if w.mode == types.ModeExclusive {
		q.exclusive = false
	}
	s.removeFromList(q, w)
	delete(s.waiters, id)

	s.wake(q, w.handle)
	if len(q.holders) == 0 && q.waiters.Len() == 0 {
		delete(s.queues, w.handle)
	}
}

// wake implements the FIFO cohort policy. It inspects the queue front:
// an exclusive front waiter is woken alone; a shared front waiter is
// woken along with every contiguous trailing shared waiter, forming one
// cohort. Bypass waiters are orthogonal to FIFO order: every pending
// bypass entry is woken whenever no exclusive token is currently held,
// independent of its position in the queue.
func (s *Scheduler) wake(q *handleQueue, h types.Handle) {
	for e := q.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		if w.ready || w.mode == types.ModeBypass {
			continue
		}
		if w.mode == types.ModeExclusive {
			if s.canAdmit(q, types.ModeExclusive) {
				s.grant(q, w)
			}
			break
		}
		// ModeShared: wake this waiter and every contiguous trailing
		// shared waiter as one cohort, then stop — whatever follows the
		// cohort (an exclusive waiter) must wait for a further release.
		if !s.canAdmit(q, types.ModeShared) {
			break
		}
		cohort := e
		for cohort != nil {
			cw := cohort.Value.(*waiter)
			if cw.ready || cw.mode != types.ModeShared {
				break
			}
			s.grant(q, cw)
			cohort = cohort.Next()
		}
		break
	}

	if q.exclusive {
		return
	}
	for e := q.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		if !w.ready && w.mode == types.ModeBypass {
			s.grant(q, w)
		}
	}
}

func (s *Scheduler) removeFromList(q *handleQueue, w *waiter) {
	for e := q.waiters.Front(); e != nil; e = e.Next() {
		if e.Value.(*waiter) == w {
			q.waiters.Remove(e)
			return
		}
	}
}

// Test non-blockingly reports whether id currently holds its token,
// returning (StatusReady, true), without consuming anything from the
// completion channel. An entry that is still waiting, or that timed out,
// was cancelled or was released, reports ("", false).
func (s *Scheduler) Test(id types.SchedID) (types.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waiters[id]
	if !ok {
		return "", false
	}
	if w.ready {
		return types.StatusReady, true
	}
	return "", false
}

// expire is invoked by a waiter's deadline timer. A not-yet-ready entry
// is pulled from its queue and delivered TIMEOUT; an already-ready entry
// is left untouched (the holder must Release).
func (s *Scheduler) expire(id types.SchedID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.waiters[id]
	if !ok || w.ready {
		return
	}
	q := s.queues[w.handle]
	if q != nil {
		s.removeFromList(q, w)
		if len(q.holders) == 0 && q.waiters.Len() == 0 {
			delete(s.queues, w.handle)
		}
	}
	delete(s.waiters, id)
	metrics.SchedulerWaiters.WithLabelValues(string(w.mode)).Dec()
	metrics.SchedulerTimeouts.Inc()
	w.done <- types.CompletionMsg{SchedID: id, Status: types.StatusTimeout}
}

// Cancel removes a not-yet-ready entry. Already-ready entries cannot be
// cancelled; the holder must Release instead.
func (s *Scheduler) Cancel(id types.SchedID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.waiters[id]
	if !ok || w.ready {
		return false
	}
	q := s.queues[w.handle]
	if q != nil {
		s.removeFromList(q, w)
		if len(q.holders) == 0 && q.waiters.Len() == 0 {
			delete(s.queues, w.handle)
		}
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	delete(s.waiters, id)
	metrics.SchedulerWaiters.WithLabelValues(string(w.mode)).Dec()
	w.done <- types.CompletionMsg{SchedID: id, Status: types.StatusCancelled}
	return true
}

// ForceRelease is called by the op-reaping path when a held token's
// op_ref is observed reaped with the token still held: a buggy consumer
// that never called Release. It releases the token and writes a warning
// log entry with the handle, mode, sched_id and whether a capability
// accompanied the original post; the capability's contents are not logged.
func (s *Scheduler) ForceRelease(id types.SchedID) {
	s.mu.Lock()
	w, ok := s.waiters[id]
	if !ok || !w.holding {
		s.mu.Unlock()
		return
	}
	capTok := w.capToken
	handle := w.handle
	mode := w.mode
	s.release(id)
	s.mu.Unlock()

	metrics.SchedulerForcedReleases.Inc()
	s.logger.Warn().
		Str("handle", handle.String()).
		Str("mode", string(mode)).
		Bool("had_capability", len(capTok) > 0).
		Uint64("sched_id", uint64(id)).
		Msg("forced release: op_ref reaped while token still held")
}

// PostMulti acquires tokens on several handles atomically with respect
// to deadlock: handles are sorted by types.Handle.Less before posting,
// so any two callers requesting an overlapping handle set always agree
// on acquisition order.
func (s *Scheduler) PostMulti(reqs []types.PostRequest) ([]types.SchedID, error) {
	sorted := append([]types.PostRequest(nil), reqs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Handle.Less(sorted[j-1].Handle); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	ids := make([]types.SchedID, 0, len(sorted))
	for _, req := range sorted {
		id, done := s.Post(req)
		ids = append(ids, id)
		msg := <-done
		if msg.Status != types.StatusReady {
			for _, held := range ids[:len(ids)-1] {
				s.Release(held)
			}
			return nil, types.NewError(types.KindTimeout, "scheduler.PostMulti", nil)
		}
	}
	return ids, nil
}
