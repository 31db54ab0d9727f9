package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/trove-io/trove/pkg/types"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// GossipService is implemented by anything that can serve bulk_insert
// and bulk_export for the SID cache.
type GossipService interface {
	BulkInsert(ctx context.Context, req *BulkInsertRequest) (*BulkInsertResponse, error)
	BulkExport(ctx context.Context, req *BulkExportRequest) (*BulkExportResponse, error)
}

type BulkInsertRequest struct {
	Records []types.SidRecord
}

type BulkInsertResponse struct{}

type BulkExportRequest struct {
	Sids []types.SID
}

type BulkExportResponse struct {
	Records []types.SidRecord
}

func bulkInsertHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(BulkInsertRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GossipService).BulkInsert(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/BulkInsert"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GossipService).BulkInsert(ctx, req.(*BulkInsertRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func bulkExportHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(BulkExportRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GossipService).BulkExport(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/BulkExport"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GossipService).BulkExport(ctx, req.(*BulkExportRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceName is the gRPC service name used in place of a .proto-derived
// one.
const ServiceName = "trove.gossip.Gossip"

// serviceDesc is the hand-registered grpc.ServiceDesc standing in for a
// protoc-generated one.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GossipService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BulkInsert", Handler: bulkInsertHandler},
		{MethodName: "BulkExport", Handler: bulkExportHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trove/gossip.proto",
}

// RegisterGossipServer registers svc's methods on s.
func RegisterGossipServer(s *grpc.Server, svc GossipService) {
	s.RegisterService(&serviceDesc, svc)
}
