package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/trove-io/trove/pkg/collection"
	"github.com/trove-io/trove/pkg/config"
	"github.com/trove-io/trove/pkg/flow"
	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/perfmon"
	"github.com/trove-io/trove/pkg/rpc"
	"github.com/trove-io/trove/pkg/scheduler"
	"github.com/trove-io/trove/pkg/sidcache"
	"github.com/trove-io/trove/pkg/trove"
	"github.com/trove-io/trove/pkg/types"
)

// queueWorkers and queueDepth size every hosted collection's op queue:
// a single node's background task pool. Not user-tunable, since op
// queue concurrency is an implementation detail, not a wire contract.
const (
	queueWorkers = 8
	queueDepth   = 256
)

// perfSampleInterval is how often the performance counter ring drains
// the running Trove op counters into a new HISTORY entry.
const perfSampleInterval = 10 * time.Second

// Engine is one server's fully assembled set of subsystems: the
// collection registry and its op queues, the handle scheduler, the SID
// cache, the flow engine, the gossip RPC server, and the performance
// counter ring. It is constructed once at startup and owns shutdown
// ordering.
type Engine struct {
	cfg     *config.Config
	selfSID types.SID

	registry  *collection.Registry
	scheduler *scheduler.Scheduler
	sidCache  *sidcache.Cache
	flow      *flow.Engine
	perfRing  *perfmon.Ring
	perfRec   *perfmon.Recorder
	rpcServer *rpc.Server

	mu     sync.Mutex
	queues map[string]*trove.Queue // keyed by collection ID

	gossipCancel context.CancelFunc
	logger       zerolog.Logger
}

// New assembles an Engine from a loaded configuration: it opens the
// collection registry (creating any collection named in cfg that does
// not already exist), registers this server's own SID record, and
// starts the performance counter recorder and gossip RPC server.
func New(cfg *config.Config) (*Engine, error) {
	selfSID, err := uuid.Parse(cfg.SID)
	if err != nil {
		return nil, types.NewError(types.KindInvalidArgument, "engine.New", fmt.Errorf("sid: %w", err))
	}

	registry, err := collection.Open(cfg.Storage.DataSpace, cfg.Storage.MetaSpace)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		selfSID:   selfSID,
		registry:  registry,
		scheduler: scheduler.New(),
		sidCache:  sidcache.New(),
		flow:      flow.New(flow.Config{BufferCount: cfg.Flow.BufferCount, BufferSize: cfg.Flow.BufferSize}),
		perfRing:  perfmon.NewRing(),
		queues:    make(map[string]*trove.Queue),
		logger:    log.WithComponent("engine"),
	}
	e.perfRec = perfmon.NewRecorder(e.perfRing, perfSampleInterval)

	if err := e.ensureCollections(); err != nil {
		registry.Close()
		return nil, err
	}
	if err := e.registerSelf(); err != nil {
		registry.Close()
		return nil, err
	}

	e.perfRec.Start()

	e.rpcServer = rpc.NewServer(e.sidCache, e.perfRing)
	if cfg.Gossip.ListenAddr != "" {
		go func() {
			if err := e.rpcServer.Serve(cfg.Gossip.ListenAddr); err != nil {
				e.logger.Error().Err(err).Msg("gossip server exited")
			}
		}()
	}
	if len(cfg.Gossip.Peers) > 0 {
		e.startGossipPush()
	}

	return e, nil
}

// ensureCollections creates any collection named in cfg.Collections that
// the registry does not already have (idempotent across restarts, since
// Open already restored anything previously persisted), and builds each
// one's op queue.
func (e *Engine) ensureCollections() error {
	for _, cc := range e.cfg.Collections {
		collID, err := e.registry.Lookup(cc.Name)
		if err != nil {
			var root types.Handle
			if cc.RootHandle != 0 {
				root = types.RootHandle(cc.RootHandle)
			}
			rng := types.HandleRange{Start: cc.HandleStart, End: cc.HandleEnd}
			c, err := e.registry.Create(cc.Name, cc.FSID, rng, root)
			if err != nil {
				return err
			}
			collID = c.ID
		}
		if err := e.attachQueue(collID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) attachQueue(collID string) error {
	_, _, store, err := e.registry.Get(collID)
	if err != nil {
		return err
	}
	q := trove.NewQueue(store, queueWorkers, queueDepth)
	q.AttachPerfmon(e.perfRec)
	e.mu.Lock()
	e.queues[collID] = q
	e.mu.Unlock()
	return nil
}

// registerSelf puts this server's own identity, address, and role
// bindings into its SID cache, the same record a peer would learn about
// it through gossip.
func (e *Engine) registerSelf() error {
	bindings := make([]types.TypeBinding, 0, len(e.cfg.Roles))
	for _, rb := range e.cfg.Roles {
		bindings = append(bindings, types.TypeBinding{Role: rb.Role, FSID: rb.FSID})
	}
	rec := types.SidRecord{SID: e.selfSID, Alias: e.cfg.Alias, URL: e.cfg.Address, Types: bindings}
	return e.sidCache.Put(rec, 0)
}

// startGossipPush periodically announces this server's own SID record to
// every configured peer. It does not merge peers' full state into this
// cache (that would need an enumeration API sidcache.Cache does not
// expose); each server's liveness/identity reaching its peers is what
// gossip is there to guarantee.
func (e *Engine) startGossipPush() {
	ctx, cancel := context.WithCancel(context.Background())
	e.gossipCancel = cancel
	go func() {
		ticker := time.NewTicker(e.cfg.Gossip.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.pushSelfToPeers(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) pushSelfToPeers(ctx context.Context) {
	self := e.sidCache.BulkExport([]types.SID{e.selfSID})
	if len(self) == 0 {
		return
	}
	for _, peer := range e.cfg.Gossip.Peers {
		client, err := rpc.Dial(peer)
		if err != nil {
			e.logger.Warn().Str("peer", peer).Err(err).Msg("gossip dial failed")
			continue
		}
		if err := client.BulkInsert(ctx, self); err != nil {
			e.logger.Warn().Str("peer", peer).Err(err).Msg("gossip push failed")
		}
		client.Close()
	}
}

// Registry returns the collection registry.
func (e *Engine) Registry() *collection.Registry { return e.registry }

// Scheduler returns the handle token scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// SidCache returns the SID cache.
func (e *Engine) SidCache() *sidcache.Cache { return e.sidCache }

// Flow returns the flow engine.
func (e *Engine) Flow() *flow.Engine { return e.flow }

// PerfRing returns the performance counter ring.
func (e *Engine) PerfRing() *perfmon.Ring { return e.perfRing }

// SelfSID returns this server's own SID.
func (e *Engine) SelfSID() types.SID { return e.selfSID }

// Queue returns the op queue for a hosted collection.
func (e *Engine) Queue(collID string) (*trove.Queue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[collID]
	if !ok {
		return nil, types.NewError(types.KindNoSuchCollection, "engine.Queue", nil)
	}
	return q, nil
}

// Close shuts every subsystem down in dependency order: gossip push,
// gossip server, perfmon sampling, every collection's op queue, and
// finally the registry (which closes each collection's Trove store).
func (e *Engine) Close() error {
	if e.gossipCancel != nil {
		e.gossipCancel()
	}
	if e.rpcServer != nil {
		e.rpcServer.Stop()
	}
	e.perfRec.Stop()

	e.mu.Lock()
	for _, q := range e.queues {
		q.Close()
	}
	e.mu.Unlock()

	return e.registry.Close()
}
