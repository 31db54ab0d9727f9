package perfmon

import "sync"

// HistorySize is the ring's fixed entry count, matching the original
// HISTORY constant.
const HistorySize = 5

// Entry is one sampled period's counters.
type Entry struct {
	ID           int64
	StartTimeMS  int64
	ReadBytes    int64
	WriteBytes   int64
	MDReadCount  int64
	MDWriteCount int64
	Valid        bool
}

// Ring holds the most recent HistorySize entries. A consumer that polls
// slower than the sample interval misses entries that get overwritten;
// Since reports those as Valid: false rather than silently skipping
// their ids.
type Ring struct {
	mu      sync.Mutex
	entries [HistorySize]Entry
	nextID  int64
}

// NewRing creates an empty ring.
func NewRing() *Ring {
	return &Ring{}
}

// Append records e, assigning it the next sequential id.
func (r *Ring) Append(e Entry) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.nextID
	r.entries[r.nextID%HistorySize] = e
	r.nextID++
	return e
}

// Since returns every entry newer than lastSeenID, in id order. Ids
// that were overwritten before this call could observe them are
// returned as Valid: false placeholders, so a slow consumer can tell a
// gap happened instead of silently missing data.
func (r *Ring) Since(lastSeenID int64) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldest := r.nextID - HistorySize
	if oldest < 0 {
		oldest = 0
	}
	start := lastSeenID + 1
	if start < 0 {
		start = 0
	}

	var out []Entry
	for id := start; id < oldest; id++ {
		out = append(out, Entry{ID: id, Valid: false})
	}
	if start > oldest {
		oldest = start
	}
	for id := oldest; id < r.nextID; id++ {
		out = append(out, r.entries[id%HistorySize])
	}
	return out
}

// LastID returns the most recently assigned id, or -1 if Ring is empty.
func (r *Ring) LastID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID - 1
}
