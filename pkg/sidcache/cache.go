package sidcache

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/metrics"
	"github.com/trove-io/trove/pkg/types"
)

// putFlags control Put's overwrite behavior.
type putFlags uint8

const (
	// FlagNoOverwrite fails Put with KindExist if sid already has a record.
	FlagNoOverwrite putFlags = 1 << iota
)

// attrIndex holds one named attribute's secondary index, ordered by
// value for range/top-k queries.
type attrIndex struct {
	bySid map[types.SID]int32
}

func newAttrIndex() *attrIndex {
	return &attrIndex{bySid: make(map[types.SID]int32)}
}

// sorted returns (sid, value) pairs ordered by value ascending.
func (a *attrIndex) sorted() []struct {
	SID   types.SID
	Value int32
} {
	out := make([]struct {
		SID   types.SID
		Value int32
	}, 0, len(a.bySid))
	for sid, v := range a.bySid {
		out = append(out, struct {
			SID   types.SID
			Value int32
		}{sid, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// Cache is the SID cache: a primary sid->record map, one attribute
// secondary index per named attribute, and a (role, fs_id) type index.
// The primary map and the type index are maintained as two independent
// maps, kept atomically in sync under mu.
type Cache struct {
	mu sync.RWMutex

	records map[types.SID]types.SidRecord
	// insertion order per SID, so lookup_by_type can enumerate matches
	// in insertion order.
	order map[types.SID]int
	seq   int

	attrs     map[string]*attrIndex
	typeIndex map[types.TypeBinding]map[types.SID]struct{}
	logger    zerolog.Logger
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		records:   make(map[types.SID]types.SidRecord),
		order:     make(map[types.SID]int),
		attrs:     make(map[string]*attrIndex),
		typeIndex: make(map[types.TypeBinding]map[types.SID]struct{}),
		logger:    log.WithComponent("sidcache"),
	}
}

// Put inserts or replaces rec. With FlagNoOverwrite it fails with
// KindExist if sid already has a record. Secondary indices are removed
// for the old value and inserted for the new one, atomically under mu.
func (c *Cache) Put(rec types.SidRecord, flags putFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, existed := c.records[rec.SID]
	if existed && flags&FlagNoOverwrite != 0 {
		return types.NewError(types.KindExist, "sidcache.Put", nil)
	}

	if existed {
		c.unindexLocked(old)
	} else {
		c.order[rec.SID] = c.seq
		c.seq++
	}
	c.records[rec.SID] = rec.Clone()
	c.indexLocked(rec)

	if !existed {
		metrics.SidRecordsTotal.Inc()
	}
	return nil
}

func (c *Cache) indexLocked(rec types.SidRecord) {
	for name, val := range rec.Attrs {
		idx, ok := c.attrs[name]
		if !ok {
			idx = newAttrIndex()
			c.attrs[name] = idx
		}
		idx.bySid[rec.SID] = val
	}
	for _, tb := range rec.Types {
		set, ok := c.typeIndex[tb]
		if !ok {
			set = make(map[types.SID]struct{})
			c.typeIndex[tb] = set
		}
		set[rec.SID] = struct{}{}
	}
}

func (c *Cache) unindexLocked(rec types.SidRecord) {
	for name := range rec.Attrs {
		if idx, ok := c.attrs[name]; ok {
			delete(idx.bySid, rec.SID)
		}
	}
	for _, tb := range rec.Types {
		if set, ok := c.typeIndex[tb]; ok {
			delete(set, rec.SID)
			if len(set) == 0 {
				delete(c.typeIndex, tb)
			}
		}
	}
}

// Get returns a copy of sid's record.
func (c *Cache) Get(sid types.SID) (types.SidRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[sid]
	if !ok {
		return types.SidRecord{}, types.NewError(types.KindNoSuchHandle, "sidcache.Get", nil)
	}
	return rec.Clone(), nil
}

// UpdateAttrs applies a partial update: a key absent from newValues is
// left unchanged, matching the "-1 in a slot means leave unchanged"
// contract generalized to named attributes.
func (c *Cache) UpdateAttrs(sid types.SID, newValues map[string]int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[sid]
	if !ok {
		return types.NewError(types.KindNoSuchHandle, "sidcache.UpdateAttrs", nil)
	}
	old := rec.Clone()
	if rec.Attrs == nil {
		rec.Attrs = make(map[string]int32, len(newValues))
	}
	for k, v := range newValues {
		rec.Attrs[k] = v
	}
	c.unindexLocked(old)
	c.records[sid] = rec
	c.indexLocked(rec)
	return nil
}

// UpdateURL updates sid's URL in place.
func (c *Cache) UpdateURL(sid types.SID, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[sid]
	if !ok {
		return types.NewError(types.KindNoSuchHandle, "sidcache.UpdateURL", nil)
	}
	rec.URL = url
	c.records[sid] = rec
	return nil
}

// UpdateBMI updates sid's BMI network address in place.
func (c *Cache) UpdateBMI(sid types.SID, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[sid]
	if !ok {
		return types.NewError(types.KindNoSuchHandle, "sidcache.UpdateBMI", nil)
	}
	rec.BMIAddr = addr
	c.records[sid] = rec
	return nil
}

// Delete removes sid from the primary map and cascades through every
// secondary index.
func (c *Cache) Delete(sid types.SID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[sid]
	if !ok {
		return types.NewError(types.KindNoSuchHandle, "sidcache.Delete", nil)
	}
	c.unindexLocked(rec)
	delete(c.records, sid)
	delete(c.order, sid)
	metrics.SidRecordsTotal.Dec()
	return nil
}

// LookupByType enumerates every SID whose type set contains (role,
// fs_id) or the fs_id=0 wildcard, in insertion order.
func (c *Cache) LookupByType(role types.Role, fsID uint32) []types.SID {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SidLookupLatency)

	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := make(map[types.SID]struct{})
	if set, ok := c.typeIndex[types.TypeBinding{Role: role, FSID: fsID}]; ok {
		for sid := range set {
			matches[sid] = struct{}{}
		}
	}
	if fsID != 0 {
		if set, ok := c.typeIndex[types.TypeBinding{Role: role, FSID: 0}]; ok {
			for sid := range set {
				matches[sid] = struct{}{}
			}
		}
	}

	out := make([]types.SID, 0, len(matches))
	for sid := range matches {
		out = append(out, sid)
	}
	sort.Slice(out, func(i, j int) bool { return c.order[out[i]] < c.order[out[j]] })
	return out
}

// TopKByAttr returns the SIDs with the k highest values of the named
// attribute, descending, answering the top-k queries the attribute
// index exists to serve. SIDs that never set attr are excluded.
func (c *Cache) TopKByAttr(attr string, k int) []types.SID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.attrs[attr]
	if !ok {
		return nil
	}
	pairs := idx.sorted()
	out := make([]types.SID, 0, k)
	for i := len(pairs) - 1; i >= 0 && len(out) < k; i-- {
		out = append(out, pairs[i].SID)
	}
	return out
}

// BulkInsert inserts many records at once, for server-to-server gossip.
// Existing records with the same SID are overwritten; a changed address
// is logged since it means a peer moved or rejoined under a new URL.
func (c *Cache) BulkInsert(recs []types.SidRecord) error {
	for _, rec := range recs {
		c.mu.RLock()
		old, existed := c.records[rec.SID]
		c.mu.RUnlock()

		if err := c.Put(rec, 0); err != nil {
			return err
		}
		if existed && old.URL != rec.URL {
			log.WithSID(c.logger, rec.SID.String()).Info().
				Str("old_url", old.URL).Str("new_url", rec.URL).
				Msg("gossip updated server address")
		}
	}
	return nil
}

// BulkExport returns copies of the records named by sids, for
// server-to-server gossip. Unknown SIDs are silently skipped.
func (c *Cache) BulkExport(sids []types.SID) []types.SidRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.SidRecord, 0, len(sids))
	for _, sid := range sids {
		if rec, ok := c.records[sid]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Len returns the number of records currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

