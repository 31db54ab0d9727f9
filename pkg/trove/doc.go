/*
Package trove implements the backing-store driver (component B) and the
async op queue (component C) of the storage engine.

A Store maps (collection, handle) to two on-disk artifacts: a sparse
bstream file under the data-space root, and a keyval map held in a
BoltDB bucket under the meta-space root, keyed by a 16-byte handle prefix
so a single bucket serves every handle in the collection while keeping
each handle's entries contiguous for ordered iteration.

Store's methods block on disk I/O. Queue wraps a Store and exposes the
same operations asynchronously: Post* returns an OpID immediately, and
Test polls for completion. The flow engine's bstream endpoint, the
collection registry and trovectl call Store's methods directly.
*/
package trove
