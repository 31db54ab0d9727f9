package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/trove-io/trove/pkg/handle"
	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/trove"
	"github.com/trove-io/trove/pkg/types"
)

var bucketCollections = []byte("collections")

// entry bundles a collection's persisted record with its live allocator
// and backing store.
type entry struct {
	coll      types.Collection
	allocator *handle.Allocator
	store     *trove.Store
}

// Registry tracks every collection hosted on this server. dataRoot and
// metaRoot are the server's independently-configured data_space and
// meta_space roots; the registry's own collection table lives under
// metaRoot alongside the collections' keyval stores.
type Registry struct {
	mu       sync.RWMutex
	db       *bolt.DB
	dataRoot string
	metaRoot string
	byID     map[string]*entry
	byName   map[string]string
	byFSID   map[uint32]string
	logger   zerolog.Logger
}

// Open creates or opens the registry's metadata database under
// metaRoot, and prepares dataRoot for each hosted collection's bstream
// files.
func Open(dataRoot, metaRoot string) (*Registry, error) {
	if err := os.MkdirAll(metaRoot, 0o755); err != nil {
		return nil, types.NewError(types.KindIOError, "collection.Open", err)
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, types.NewError(types.KindIOError, "collection.Open", err)
	}
	db, err := bolt.Open(filepath.Join(metaRoot, "collections.db"), 0o600, nil)
	if err != nil {
		return nil, types.NewError(types.KindIOError, "collection.Open", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	}); err != nil {
		db.Close()
		return nil, types.NewError(types.KindIOError, "collection.Open", err)
	}

	r := &Registry{
		db:       db,
		dataRoot: dataRoot,
		metaRoot: metaRoot,
		byID:     make(map[string]*entry),
		byName:   make(map[string]string),
		byFSID:   make(map[uint32]string),
		logger:   log.WithComponent("collection"),
	}
	if err := r.restore(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// restore reopens every persisted collection's store and recovers its
// allocator from a directory scan, so state survives a server restart.
func (r *Registry) restore() error {
	var colls []types.Collection
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollections).ForEach(func(_, v []byte) error {
			var c types.Collection
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			colls = append(colls, c)
			return nil
		})
	})
	if err != nil {
		return types.NewError(types.KindIOError, "collection.restore", err)
	}

	for _, c := range colls {
		if err := r.attach(c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) attach(c types.Collection) error {
	st, err := trove.Open(r.dataRoot, r.metaRoot, c.FSID)
	if err != nil {
		return err
	}
	live, err := st.ListHandles()
	if err != nil {
		st.Close()
		return err
	}
	alloc, err := handle.Recover(c.HandleRange, live)
	if err != nil {
		st.Close()
		return err
	}

	e := &entry{coll: c, allocator: alloc, store: st}
	r.byID[c.ID] = e
	r.byName[c.Name] = c.ID
	r.byFSID[c.FSID] = c.ID
	return nil
}

// Close releases every collection's backing store and the registry's
// own metadata database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byID {
		e.store.Close()
	}
	return r.db.Close()
}

// Create registers a new collection. It refuses creation if fsID
// collides with an existing collection.
func (r *Registry) Create(name string, fsID uint32, rng types.HandleRange, rootHandle types.Handle) (types.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byFSID[fsID]; exists {
		return types.Collection{}, types.NewError(types.KindExist, "collection.Create",
			fmt.Errorf("fs_id %d already in use", fsID))
	}
	if _, exists := r.byName[name]; exists {
		return types.Collection{}, types.NewError(types.KindExist, "collection.Create",
			fmt.Errorf("name %q already in use", name))
	}

	c := types.Collection{
		ID:          fmt.Sprintf("coll-%d", fsID),
		Name:        name,
		FSID:        fsID,
		HandleRange: rng,
		RootHandle:  rootHandle,
		EAttrs:      make(map[string][]byte),
	}

	if err := r.persist(c); err != nil {
		return types.Collection{}, err
	}
	if err := r.attach(c); err != nil {
		return types.Collection{}, err
	}

	e := r.byID[c.ID]
	if !rootHandle.IsNull() {
		if err := e.allocator.Reserve(rootHandle); err != nil {
			return types.Collection{}, err
		}
		if err := e.store.DspaceCreate(rootHandle, types.DSTypeDirectory); err != nil {
			return types.Collection{}, err
		}
	}

	log.WithCollection(r.logger, c.ID).Info().
		Str("name", name).Uint32("fs_id", fsID).Msg("collection created")
	return c, nil
}

func (r *Registry) persist(c types.Collection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return types.NewError(types.KindInternal, "collection.persist", err)
	}
	err = r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollections).Put([]byte(c.ID), data)
	})
	if err != nil {
		return types.NewError(types.KindIOError, "collection.persist", err)
	}
	return nil
}

// Lookup resolves a collection name to its internal collection ID.
func (r *Registry) Lookup(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return "", types.NewError(types.KindNoSuchCollection, "collection.Lookup", nil)
	}
	return id, nil
}

func (r *Registry) get(collID string) (*entry, error) {
	e, ok := r.byID[collID]
	if !ok {
		return nil, types.NewError(types.KindNoSuchCollection, "collection", nil)
	}
	return e, nil
}

// Get returns the collection record and its live allocator/store, used
// by components operating on dataspaces within it.
func (r *Registry) Get(collID string) (types.Collection, *handle.Allocator, *trove.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.get(collID)
	if err != nil {
		return types.Collection{}, nil, nil, err
	}
	return e.coll, e.allocator, e.store, nil
}

// GetEAttr reads a collection-level extended attribute.
func (r *Registry) GetEAttr(collID string, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, err := r.get(collID)
	if err != nil {
		return nil, err
	}
	v, ok := e.coll.EAttrs[key]
	if !ok {
		return nil, types.NewError(types.KindNoSuchKey, "collection.GetEAttr", nil)
	}
	return append([]byte(nil), v...), nil
}

// SetEAttr writes a collection-level extended attribute, persisting the
// updated record.
func (r *Registry) SetEAttr(collID string, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.get(collID)
	if err != nil {
		return err
	}
	if e.coll.EAttrs == nil {
		e.coll.EAttrs = make(map[string][]byte)
	}
	e.coll.EAttrs[key] = append([]byte(nil), value...)
	return r.persist(e.coll)
}

// Remove deletes a collection. With purge=false it fails if any
// dataspace besides the root directory exists; with purge=true it first
// deletes every dataspace.
func (r *Registry) Remove(collID string, purge bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.get(collID)
	if err != nil {
		return err
	}

	handles, err := e.store.ListHandles()
	if err != nil {
		return err
	}

	nonRoot := 0
	for _, h := range handles {
		if e.coll.RootHandle.IsNull() || h != e.coll.RootHandle {
			nonRoot++
		}
	}
	if nonRoot > 0 && !purge {
		return types.NewError(types.KindExist, "collection.Remove",
			fmt.Errorf("collection %s is not empty", e.coll.Name))
	}

	if purge {
		for _, h := range handles {
			if err := e.store.DspaceRemove(h); err != nil {
				return err
			}
		}
	}

	if err := e.store.Close(); err != nil {
		return types.NewError(types.KindIOError, "collection.Remove", err)
	}
	if err := r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollections).Delete([]byte(collID))
	}); err != nil {
		return types.NewError(types.KindIOError, "collection.Remove", err)
	}

	delete(r.byID, collID)
	delete(r.byName, e.coll.Name)
	delete(r.byFSID, e.coll.FSID)

	log.WithCollection(r.logger, collID).Info().Bool("purge", purge).Msg("collection removed")
	return nil
}
