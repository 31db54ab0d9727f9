package scheduler

import (
	"testing"

	"github.com/trove-io/trove/pkg/types"
)

func TestSchedulerTestReportsReady(t *testing.T) {
	s := New()
	h := types.Handle{Lo: 1}

	id, done := s.Post(types.PostRequest{Handle: h, Mode: types.ModeExclusive})
	mustReady(t, done)

	status, ok := s.Test(id)
	if !ok || status != types.StatusReady {
		t.Fatalf("expected (ready, true), got (%v, %v)", status, ok)
	}
}

func TestSchedulerTestUnknownID(t *testing.T) {
	s := New()
	if _, ok := s.Test(types.SchedID(9999)); ok {
		t.Fatal("expected false for unknown sched_id")
	}
}

func TestSchedulerQueueCleanupAfterRelease(t *testing.T) {
	s := New()
	h := types.Handle{Lo: 1}

	id, done := s.Post(types.PostRequest{Handle: h, Mode: types.ModeExclusive})
	mustReady(t, done)
	s.Release(id)

	s.mu.Lock()
	_, exists := s.queues[h]
	s.mu.Unlock()
	if exists {
		t.Fatal("expected handle queue to be cleaned up once empty")
	}
}

func TestSchedulerReleaseUnknownIsNoop(t *testing.T) {
	s := New()
	s.Release(types.SchedID(1234)) // must not panic
}

func TestSchedulerCanAdmitExcludesBypassFromExclusive(t *testing.T) {
	s := New()
	h := types.Handle{Lo: 1}

	_, bypassDone := s.Post(types.PostRequest{Handle: h, Mode: types.ModeBypass})
	mustReady(t, bypassDone)

	_, exclDone := s.Post(types.PostRequest{Handle: h, Mode: types.ModeExclusive})
	select {
	case <-exclDone:
		t.Fatal("exclusive became ready while a bypass holder was present")
	default:
	}
}
