/*
Package types defines the core data structures shared across Trove.

This package contains the domain model for the storage engine, the
scheduler, and the SID cache: handles, dataspaces, collections, request
tokens, SID records, and flow descriptors. Every other package in this
module builds on these types instead of inventing parallel ones.

# Core Types

Storage domain:
  - Handle: 128-bit opaque identifier for a dataspace
  - DSAttr: a dataspace's type, bstream size, and keyval count
  - Collection: a named group of dataspaces (one hosted filesystem)

Scheduling domain:
  - Mode: shared, exclusive, or bypass access to a handle
  - PostRequest / CompletionMsg: the scheduler's wire contract

Cluster-identity domain:
  - SID: a 128-bit server identity
  - SidRecord: a server's address, attributes, and role bindings
  - Role: one of the nine server roles from the SID snapshot format

Bulk-transfer domain:
  - FlowDescriptor: a pipelined move between a network and bstream endpoint

Errors:
  - Kind: the error taxonomy of the error-handling design
  - Error: a Kind plus a wrapped cause, usable with errors.Is/As
*/
package types
