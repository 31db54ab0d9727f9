/*
Package rpc exposes the SID cache's gossip operations (bulk_insert,
bulk_export) and the perfmon history poll over gRPC.

There is no .proto for this service: grpc-go dispatches by a
hand-registered grpc.ServiceDesc and a JSON encoding.Codec
(jsonCodec), so request/response types are plain Go structs in this
package rather than protoc-generated message types. This keeps the real
google.golang.org/grpc transport, connection management, and interceptor
chain, without fabricating generated stubs.
*/
package rpc
