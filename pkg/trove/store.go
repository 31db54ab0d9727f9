package trove

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDspace = []byte("dspace")
	bucketKeyval = []byte("keyval")
)

// dsRecord is the persisted portion of a dataspace's attributes; size
// and keyval count are derived rather than stored, so they can't drift.
type dsRecord struct {
	Type       types.DSType
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Store is the backing-store driver for one collection: a BoltDB handle
// for keyval/attribute metadata plus a directory of sparse bstream files.
type Store struct {
	fsID     uint32
	dataDir  string // data_space/<fs_id>
	db       *bolt.DB
	flushInt time.Duration
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// Open creates or opens the backing store for collection fsID, rooted at
// dataSpaceRoot and metaSpaceRoot.
func Open(dataSpaceRoot, metaSpaceRoot string, fsID uint32) (*Store, error) {
	dataDir := filepath.Join(dataSpaceRoot, fmt.Sprintf("%d", fsID))
	metaDir := filepath.Join(metaSpaceRoot, fmt.Sprintf("%d", fsID))
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, types.NewError(types.KindIOError, "trove.Open", err)
	}
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, types.NewError(types.KindIOError, "trove.Open", err)
	}

	dbPath := filepath.Join(metaDir, "meta.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, types.NewError(types.KindIOError, "trove.Open", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDspace); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketKeyval)
		return err
	})
	if err != nil {
		db.Close()
		return nil, types.NewError(types.KindIOError, "trove.Open", err)
	}

	s := &Store{
		fsID:     fsID,
		dataDir:  dataDir,
		db:       db,
		flushInt: time.Second,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("trove.store"),
	}
	go s.flushLoop()
	return s, nil
}

// Close releases the store's BoltDB handle.
func (s *Store) Close() error {
	close(s.stopCh)
	return s.db.Close()
}

// flushLoop periodically forces a durable commit so that non-SYNC
// writes (deferred for throughput) don't stay resident indefinitely.
func (s *Store) flushLoop() {
	ticker := time.NewTicker(s.flushInt)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			wasNoSync := s.db.NoSync
			s.db.NoSync = false
			if err := s.db.Update(func(tx *bolt.Tx) error { return nil }); err != nil {
				s.logger.Warn().Err(err).Msg("periodic flush failed")
			}
			s.db.NoSync = wasNoSync
		case <-s.stopCh:
			return
		}
	}
}

func keyvalKey(h types.Handle, key []byte) []byte {
	buf := make([]byte, 0, 16+len(key))
	buf = append(buf, h.Bytes()...)
	buf = append(buf, key...)
	return buf
}

func (s *Store) bstreamPath(h types.Handle) string {
	return filepath.Join(s.dataDir, h.String())
}

// DspaceCreate registers h as a new dataspace of the given type. Create
// is always durable on completion regardless of flags.
func (s *Store) DspaceCreate(h types.Handle, dsType types.DSType) error {
	wasNoSync := s.db.NoSync
	s.db.NoSync = false
	defer func() { s.db.NoSync = wasNoSync }()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDspace)
		if b.Get(h.Bytes()) != nil {
			return types.NewError(types.KindExist, "dspace_create", nil)
		}
		now := time.Now()
		rec := dsRecord{Type: dsType, CreatedAt: now, ModifiedAt: now}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(h.Bytes(), data)
	})
	return toTroveErr("dspace_create", err)
}

// DspaceRemove removes h's dataspace record and keyval entries in one
// durable transaction, then deletes h's bstream file. The two steps are
// not atomic together: if the file deletion fails, the metadata removal
// stands and an IO error is returned.
func (s *Store) DspaceRemove(h types.Handle) error {
	wasNoSync := s.db.NoSync
	s.db.NoSync = false
	defer func() { s.db.NoSync = wasNoSync }()

	err := s.db.Update(func(tx *bolt.Tx) error {
		db := tx.Bucket(bucketDspace)
		if db.Get(h.Bytes()) == nil {
			return types.NewError(types.KindNoSuchHandle, "dspace_remove", nil)
		}
		if err := db.Delete(h.Bytes()); err != nil {
			return err
		}
		kb := tx.Bucket(bucketKeyval)
		return deletePrefix(kb, h.Bytes())
	})
	if err != nil {
		return toTroveErr("dspace_remove", err)
	}
	if rmErr := os.Remove(s.bstreamPath(h)); rmErr != nil && !os.IsNotExist(rmErr) {
		return types.NewError(types.KindIOError, "dspace_remove", rmErr)
	}
	return nil
}

func deletePrefix(b *bolt.Bucket, prefix []byte) error {
	c := b.Cursor()
	var toDelete [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		toDelete = append(toDelete, append([]byte(nil), k...))
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// ListHandles returns every dataspace handle currently registered in
// this store, for allocator recovery on restart and for collection
// purge: the set of live handles is recoverable from scanning the
// backing-store driver's directory.
func (s *Store) ListHandles() ([]types.Handle, error) {
	var handles []types.Handle
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDspace).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			handles = append(handles, types.HandleFromBytes(k))
		}
		return nil
	})
	if err != nil {
		return nil, toTroveErr("list_handles", err)
	}
	return handles, nil
}

// DspaceGetAttr returns the dataspace's type, bstream size, and keyval
// count. Size/count are derived at call time, never cached.
func (s *Store) DspaceGetAttr(h types.Handle) (types.DSAttr, error) {
	var rec dsRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDspace).Get(h.Bytes())
		if data == nil {
			return types.NewError(types.KindNoSuchHandle, "dspace_get_attr", nil)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return types.DSAttr{}, toTroveErr("dspace_get_attr", err)
	}

	var size int64
	if fi, statErr := os.Stat(s.bstreamPath(h)); statErr == nil {
		size = fi.Size()
	}

	var count int
	_ = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKeyval).Cursor()
		prefix := h.Bytes()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			count++
		}
		return nil
	})

	return types.DSAttr{
		Handle:      h,
		Type:        rec.Type,
		BstreamSize: size,
		KeyvalCount: count,
		CreatedAt:   rec.CreatedAt,
		ModifiedAt:  rec.ModifiedAt,
	}, nil
}

// KeyvalRead returns the value stored under key for h.
func (s *Store) KeyvalRead(h types.Handle, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKeyval).Get(keyvalKey(h, key))
		if v == nil {
			return types.NewError(types.KindNoSuchKey, "keyval_read", nil)
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, toTroveErr("keyval_read", err)
	}
	return out, nil
}

// KeyvalWrite stores value under key for h. FlagNoOverwrite rejects an
// existing key with KindExist; FlagSync forces a durable commit.
func (s *Store) KeyvalWrite(h types.Handle, key, value []byte, flags types.WriteFlags) error {
	wasNoSync := s.db.NoSync
	s.db.NoSync = !flags.Has(types.FlagSync)
	defer func() { s.db.NoSync = wasNoSync }()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeyval)
		k := keyvalKey(h, key)
		if flags.Has(types.FlagNoOverwrite) && b.Get(k) != nil {
			return types.NewError(types.KindExist, "keyval_write", nil)
		}
		return b.Put(k, value)
	})
	if err == nil {
		s.touch(h)
	}
	return toTroveErr("keyval_write", err)
}

func (s *Store) touch(h types.Handle) {
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDspace)
		data := b.Get(h.Bytes())
		if data == nil {
			return nil
		}
		var rec dsRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		rec.ModifiedAt = time.Now()
		out, err := json.Marshal(rec)
		if err != nil {
			return nil
		}
		return b.Put(h.Bytes(), out)
	})
}

// KeyvalRemove deletes key for h. No error if the key does not exist.
func (s *Store) KeyvalRemove(h types.Handle, key []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeyval).Delete(keyvalKey(h, key))
	})
	return toTroveErr("keyval_remove", err)
}

// KeyvalIterate lists up to maxCount entries for h starting at cursor,
// returning the next cursor (types.CursorEnd once exhausted).
func (s *Store) KeyvalIterate(h types.Handle, cursor types.Cursor, maxCount int) ([]types.KeyvalEntry, types.Cursor, error) {
	prefix := h.Bytes()
	var entries []types.KeyvalEntry
	nextCursor := types.CursorEnd

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKeyval).Cursor()
		var k, v []byte
		if cursor == types.CursorStart {
			k, v = c.Seek(prefix)
		} else {
			k, v = c.Seek([]byte(cursor))
			if k != nil && bytes.Equal(k, []byte(cursor)) {
				k, v = c.Next()
			}
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			entries = append(entries, types.KeyvalEntry{
				Key:   append([]byte(nil), k[16:]...),
				Value: append([]byte(nil), v...),
			})
			if len(entries) == maxCount {
				nk, _ := c.Next()
				if nk != nil && bytes.HasPrefix(nk, prefix) {
					nextCursor = types.Cursor(k)
				}
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, types.CursorEnd, toTroveErr("keyval_iterate", err)
	}
	return entries, nextCursor, nil
}

// validateListio checks that mem and stream region totals match and
// that stream regions don't overlap.
func validateListio(mem []types.MemRegion, stream []types.StreamRegion) error {
	if types.TotalMemLen(mem) != types.TotalStreamLen(stream) {
		return types.NewError(types.KindInvalidArgument, "listio",
			fmt.Errorf("mem total %d != stream total %d", types.TotalMemLen(mem), types.TotalStreamLen(stream)))
	}
	sorted := append([]types.StreamRegion(nil), stream...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Offset < sorted[i-1].Offset+sorted[i-1].Length {
			return types.NewError(types.KindInvalidArgument, "listio",
				fmt.Errorf("overlapping stream regions at offset %d", sorted[i].Offset))
		}
	}
	return nil
}

// BstreamWriteList gathers bytes from mem regions and scatters them
// into the bstream file at the given stream regions.
func (s *Store) BstreamWriteList(h types.Handle, mem []types.MemRegion, stream []types.StreamRegion, flags types.WriteFlags) (int64, error) {
	if err := validateListio(mem, stream); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(s.bstreamPath(h), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, types.NewError(types.KindIOError, "bstream_write_list", err)
	}
	defer f.Close()

	src := newByteCursor(mem)
	var total int64
	for _, region := range stream {
		buf, err := src.next(int(region.Length))
		if err != nil {
			return total, types.NewError(types.KindInvalidArgument, "bstream_write_list", err)
		}
		n, err := f.WriteAt(buf, region.Offset)
		total += int64(n)
		if err != nil {
			return total, types.NewError(types.KindIOError, "bstream_write_list", err)
		}
	}
	if flags.Has(types.FlagSync) {
		if err := f.Sync(); err != nil {
			return total, types.NewError(types.KindIOError, "bstream_write_list", err)
		}
	}
	s.touch(h)
	return total, nil
}

// BstreamReadList gathers bytes from the bstream file at the given
// stream regions and scatters them into the mem regions.
func (s *Store) BstreamReadList(h types.Handle, mem []types.MemRegion, stream []types.StreamRegion) (int64, error) {
	if err := validateListio(mem, stream); err != nil {
		return 0, err
	}

	f, err := os.Open(s.bstreamPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, types.NewError(types.KindNoSuchHandle, "bstream_read_list", err)
		}
		return 0, types.NewError(types.KindIOError, "bstream_read_list", err)
	}
	defer f.Close()

	dst := newByteCursor(mem)
	var total int64
	for _, region := range stream {
		buf := make([]byte, region.Length)
		n, err := f.ReadAt(buf, region.Offset)
		// A short read at EOF on a sparse file still yields zero bytes
		// for the unwritten tail; only a non-EOF error is fatal here.
		if err != nil && err != io.EOF {
			return total, types.NewError(types.KindIOError, "bstream_read_list", err)
		}
		if werr := dst.put(buf); werr != nil {
			return total, types.NewError(types.KindInvalidArgument, "bstream_read_list", werr)
		}
		total += int64(len(buf))
	}
	return total, nil
}

func toTroveErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if asTypesError(err, &te) {
		return te
	}
	return types.NewError(types.KindIOError, op, err)
}

func asTypesError(err error, target **types.Error) bool {
	if e, ok := err.(*types.Error); ok {
		*target = e
		return true
	}
	return false
}
