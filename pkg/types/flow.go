package types

// EndpointKind distinguishes the two kinds of flow endpoint.
type EndpointKind string

const (
	EndpointNetwork EndpointKind = "network"
	EndpointBstream EndpointKind = "bstream"
)

// FlowEndpoint is one side of a flow descriptor: either a network
// stream or a Trove bstream region list.
type FlowEndpoint struct {
	Kind    EndpointKind
	Handle  Handle         // valid when Kind == EndpointBstream
	Regions []StreamRegion // valid when Kind == EndpointBstream
}

// FlowDescriptor describes a pipelined byte move between two endpoints.
type FlowDescriptor struct {
	ID       string
	Coll     string
	Source   FlowEndpoint
	Sink     FlowEndpoint
	Total    int64 // total bytes requested, source == sink on success
}

// FlowState is the lifecycle state of a flow.
type FlowState string

const (
	FlowStatePending   FlowState = "pending"
	FlowStateRunning   FlowState = "running"
	FlowStateComplete  FlowState = "complete"
	FlowStateCancelled FlowState = "cancelled"
	FlowStateFailed    FlowState = "failed"
)

// FlowResult is the outcome of a completed or cancelled flow.
type FlowResult struct {
	State            FlowState
	BytesTransferred int64
	Err              error
}
