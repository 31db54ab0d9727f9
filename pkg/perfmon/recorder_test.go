package perfmon

import (
	"testing"
	"time"
)

func TestRecorderSamplesAndResets(t *testing.T) {
	ring := NewRing()
	rec := NewRecorder(ring, 5*time.Millisecond)
	rec.RecordRead(100)
	rec.RecordWrite(40)
	rec.RecordMDRead()
	rec.RecordMDRead()
	rec.RecordMDWrite()

	rec.Start()
	defer rec.Stop()

	var entries []Entry
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		entries = ring.Since(-1)
		if len(entries) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(entries) == 0 {
		t.Fatal("recorder never sampled")
	}
	first := entries[0]
	if first.ReadBytes != 100 || first.WriteBytes != 40 {
		t.Fatalf("unexpected byte counters: %+v", first)
	}
	if first.MDReadCount != 2 || first.MDWriteCount != 1 {
		t.Fatalf("unexpected md counters: %+v", first)
	}

	// Counters must have been drained back to zero after the sample, so
	// the next tick reports only what happens after this point.
	rec.RecordRead(7)
	deadline = time.Now().Add(time.Second)
	var second Entry
	found := false
	for time.Now().Before(deadline) {
		for _, e := range ring.Since(first.ID) {
			if e.Valid && e.ID > first.ID {
				second = e
				found = true
				break
			}
		}
		if found {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !found {
		t.Fatal("recorder never produced a second sample")
	}
	if second.ReadBytes != 7 || second.WriteBytes != 0 {
		t.Fatalf("counters were not reset between samples: %+v", second)
	}
}

func TestRecorderStopHaltsSampling(t *testing.T) {
	ring := NewRing()
	rec := NewRecorder(ring, 5*time.Millisecond)
	rec.Start()
	time.Sleep(20 * time.Millisecond)
	rec.Stop()

	last := ring.LastID()
	time.Sleep(30 * time.Millisecond)
	if ring.LastID() != last {
		t.Fatalf("ring kept growing after Stop: %d -> %d", last, ring.LastID())
	}
}
