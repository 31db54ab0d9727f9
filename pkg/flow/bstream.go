package flow

import (
	"io"

	"github.com/trove-io/trove/pkg/trove"
	"github.com/trove-io/trove/pkg/types"
)

// BstreamEndpoint adapts a handle's bstream region list into a
// sequential io.Reader/io.Writer over the list's flattened virtual
// stream, so the flow engine can treat it the same as a network
// endpoint. Each Read/Write call slices the region list down to the
// sub-regions covering the requested span, preserving each region's
// true on-disk offset.
type BstreamEndpoint struct {
	store   *trove.Store
	handle  types.Handle
	regions []types.StreamRegion
	total   int64
	offset  int64
	flags   types.WriteFlags
}

// NewBstreamEndpoint builds an endpoint over regions. flags only matter
// for the write direction.
func NewBstreamEndpoint(store *trove.Store, handle types.Handle, regions []types.StreamRegion, flags types.WriteFlags) *BstreamEndpoint {
	return &BstreamEndpoint{
		store:   store,
		handle:  handle,
		regions: regions,
		total:   types.TotalStreamLen(regions),
		flags:   flags,
	}
}

// Read implements io.Reader, gathering up to len(p) bytes from the
// virtual stream starting at the endpoint's current offset.
func (e *BstreamEndpoint) Read(p []byte) (int, error) {
	remaining := e.total - e.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	n := int64(len(p))
	if n > remaining {
		n = remaining
	}
	sub := sliceRegions(e.regions, e.offset, n)
	mem := []types.MemRegion{{Data: p[:n]}}
	if _, err := e.store.BstreamReadList(e.handle, mem, sub); err != nil {
		return 0, err
	}
	e.offset += n
	return int(n), nil
}

// Write implements io.Writer, scattering p into the virtual stream
// starting at the endpoint's current offset.
func (e *BstreamEndpoint) Write(p []byte) (int, error) {
	n := int64(len(p))
	sub := sliceRegions(e.regions, e.offset, n)
	mem := []types.MemRegion{{Data: p}}
	if _, err := e.store.BstreamWriteList(e.handle, mem, sub, e.flags); err != nil {
		return 0, err
	}
	e.offset += n
	return len(p), nil
}

// sliceRegions returns the stream regions covering the virtual byte
// range [skip, skip+n) of the stream obtained by concatenating regions
// in order, preserving each returned sub-region's real Offset.
func sliceRegions(regions []types.StreamRegion, skip, n int64) []types.StreamRegion {
	var out []types.StreamRegion
	for _, r := range regions {
		if n <= 0 {
			break
		}
		if skip >= r.Length {
			skip -= r.Length
			continue
		}
		start := r.Offset + skip
		avail := r.Length - skip
		take := avail
		if take > n {
			take = n
		}
		out = append(out, types.StreamRegion{Offset: start, Length: take})
		n -= take
		skip = 0
	}
	return out
}
