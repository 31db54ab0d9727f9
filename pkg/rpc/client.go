package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/trove-io/trove/pkg/perfmon"
	"github.com/trove-io/trove/pkg/types"
)

// Client dials a peer's gossip service for SID cache exchange.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a peer's gossip service at addr.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// BulkInsert pushes records to the peer.
func (c *Client) BulkInsert(ctx context.Context, records []types.SidRecord) error {
	resp := new(BulkInsertResponse)
	req := &BulkInsertRequest{Records: records}
	return c.conn.Invoke(ctx, ServiceName+"/BulkInsert", req, resp)
}

// BulkExport pulls records for sids from the peer.
func (c *Client) BulkExport(ctx context.Context, sids []types.SID) ([]types.SidRecord, error) {
	resp := new(BulkExportResponse)
	req := &BulkExportRequest{Sids: sids}
	if err := c.conn.Invoke(ctx, ServiceName+"/BulkExport", req, resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Since polls a peer's performance counter ring for every entry newer
// than lastSeenID.
func (c *Client) Since(ctx context.Context, lastSeenID int64) ([]perfmon.Entry, error) {
	resp := new(PerfmonSinceResponse)
	req := &PerfmonSinceRequest{LastSeenID: lastSeenID}
	if err := c.conn.Invoke(ctx, PerfmonServiceName+"/Since", req, resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
