package types

// Collection is a persistent group of dataspaces corresponding to one
// hosted filesystem on this server.
type Collection struct {
	ID          string // opaque local identifier, e.g. "coll-<fs_id>"
	Name        string
	FSID        uint32
	HandleRange HandleRange
	RootHandle  Handle
	EAttrs      map[string][]byte
	// Degraded and ReadOnly are stored with the collection record. No
	// code in this module sets them, and ops are dispatched without
	// checking them.
	Degraded bool
	ReadOnly bool
}

// StripingDefaults configures how new datafiles in a collection are
// striped and encoded across the cluster, fixed once at collection
// creation rather than renegotiated per I/O.
type StripingDefaults struct {
	FlowProto FlowProto
	Encoding  Encoding
	Factor    int // stripe width
}

// FlowProto is the flow-protocol capability selected at mount time.
type FlowProto string

const (
	FlowProtoMultiQueue  FlowProto = "MultiQueue"
	FlowProtoBmiCache    FlowProto = "BmiCache"
	FlowProtoDumpOffsets FlowProto = "DumpOffsets"
	FlowProtoBmiTrove    FlowProto = "BmiTrove"
)

// Encoding is the wire-encoding capability selected at mount time.
type Encoding string

const (
	EncodingDirect    Encoding = "Direct"
	EncodingLeBitfield Encoding = "LeBitfield"
	EncodingXdr        Encoding = "Xdr"
)
