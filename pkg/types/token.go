package types

// Mode is the concurrency mode a scheduler token is held in.
type Mode string

const (
	ModeShared    Mode = "shared"
	ModeExclusive Mode = "exclusive"
	ModeBypass    Mode = "bypass"
)

// Status is the outcome of a scheduler post, delivered in CompletionMsg.
type Status string

const (
	StatusReady     Status = "ready"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// PostRequest is the scheduler's inbound wire contract.
type PostRequest struct {
	Handle     Handle
	Mode       Mode
	DeadlineMS int64 // 0 means no deadline
	UserRef    any   // opaque to the scheduler; CompletionMsg does not carry it
	// Capability is the signed capability token produced by the external
	// capability signer. The scheduler does not verify it; it is
	// threaded through only so the forced-release audit log can record
	// whether one was supplied. Its bytes and issuer are not logged.
	Capability []byte
}

// SchedID identifies a posted, possibly-not-yet-ready token.
type SchedID uint64

// CompletionMsg is delivered when a posted token becomes ready (or
// times out / is cancelled).
type CompletionMsg struct {
	SchedID SchedID
	Status  Status
}
