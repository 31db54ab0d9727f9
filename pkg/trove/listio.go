package trove

import (
	"fmt"

	"github.com/trove-io/trove/pkg/types"
)

// byteCursor flattens a list of mem regions into one virtual byte
// stream, so the total-bytes-match contract can be honored without
// requiring mem and stream regions to share boundaries.
type byteCursor struct {
	regions []types.MemRegion
	idx     int // current region
	off     int // offset within current region
}

func newByteCursor(mem []types.MemRegion) *byteCursor {
	return &byteCursor{regions: mem}
}

// next consumes n bytes from the virtual stream for a gather write.
func (c *byteCursor) next(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		if c.idx >= len(c.regions) {
			return nil, fmt.Errorf("mem regions exhausted, need %d more bytes", n-len(out))
		}
		region := c.regions[c.idx].Data
		avail := len(region) - c.off
		if avail == 0 {
			c.idx++
			c.off = 0
			continue
		}
		take := n - len(out)
		if take > avail {
			take = avail
		}
		out = append(out, region[c.off:c.off+take]...)
		c.off += take
	}
	return out, nil
}

// put scatters buf into the virtual stream for a scatter read, writing
// into the caller-provided mem region byte slices in place.
func (c *byteCursor) put(buf []byte) error {
	written := 0
	for written < len(buf) {
		if c.idx >= len(c.regions) {
			return fmt.Errorf("mem regions exhausted, need %d more bytes", len(buf)-written)
		}
		region := c.regions[c.idx].Data
		avail := len(region) - c.off
		if avail == 0 {
			c.idx++
			c.off = 0
			continue
		}
		take := len(buf) - written
		if take > avail {
			take = avail
		}
		copy(region[c.off:c.off+take], buf[written:written+take])
		c.off += take
		written += take
	}
	return nil
}
