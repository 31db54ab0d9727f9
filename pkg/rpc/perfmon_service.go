package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/trove-io/trove/pkg/perfmon"
)

// PerfmonService is implemented by anything that can serve a server's
// HISTORY ring over the wire, for the `perfmon <mount>` CLI command.
type PerfmonService interface {
	Since(ctx context.Context, req *PerfmonSinceRequest) (*PerfmonSinceResponse, error)
}

type PerfmonSinceRequest struct {
	LastSeenID int64
}

type PerfmonSinceResponse struct {
	Entries []perfmon.Entry
}

func perfmonSinceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(PerfmonSinceRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PerfmonService).Since(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PerfmonServiceName + "/Since"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PerfmonService).Since(ctx, req.(*PerfmonSinceRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// PerfmonServiceName is the gRPC service name used in place of a
// .proto-derived one.
const PerfmonServiceName = "trove.perfmon.Perfmon"

var perfmonServiceDesc = grpc.ServiceDesc{
	ServiceName: PerfmonServiceName,
	HandlerType: (*PerfmonService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Since", Handler: perfmonSinceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trove/perfmon.proto",
}

// RegisterPerfmonServer registers svc's methods on s.
func RegisterPerfmonServer(s *grpc.Server, svc PerfmonService) {
	s.RegisterService(&perfmonServiceDesc, svc)
}
