package rpc

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/trove-io/trove/pkg/log"
	"github.com/trove-io/trove/pkg/perfmon"
	"github.com/trove-io/trove/pkg/sidcache"
)

// Server serves the gossip and perfmon services over a SID cache and a
// performance counter ring.
type Server struct {
	cache  *sidcache.Cache
	ring   *perfmon.Ring
	grpc   *grpc.Server
	logger zerolog.Logger
}

// NewServer builds a gossip+perfmon server over cache and ring. ring may
// be nil, in which case Since always reports an empty history (used by
// tests that only exercise the gossip half).
func NewServer(cache *sidcache.Cache, ring *perfmon.Ring) *Server {
	s := &Server{
		cache:  cache,
		ring:   ring,
		grpc:   grpc.NewServer(),
		logger: log.WithComponent("rpc"),
	}
	RegisterGossipServer(s.grpc, s)
	RegisterPerfmonServer(s.grpc, s)
	return s
}

// Serve listens on addr and blocks serving gossip requests until Stop is
// called.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", addr).Msg("gossip service listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) BulkInsert(ctx context.Context, req *BulkInsertRequest) (*BulkInsertResponse, error) {
	if err := s.cache.BulkInsert(req.Records); err != nil {
		return nil, err
	}
	s.logger.Debug().Int("count", len(req.Records)).Msg("bulk_insert")
	return &BulkInsertResponse{}, nil
}

func (s *Server) BulkExport(ctx context.Context, req *BulkExportRequest) (*BulkExportResponse, error) {
	return &BulkExportResponse{Records: s.cache.BulkExport(req.Sids)}, nil
}

// Since serves a perfmon poll: every HISTORY entry newer than
// req.LastSeenID, including valid=false gap placeholders.
func (s *Server) Since(ctx context.Context, req *PerfmonSinceRequest) (*PerfmonSinceResponse, error) {
	if s.ring == nil {
		return &PerfmonSinceResponse{}, nil
	}
	return &PerfmonSinceResponse{Entries: s.ring.Since(req.LastSeenID)}, nil
}
