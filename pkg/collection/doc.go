/*
Package collection implements the collection registry (component D): the
set of filesystems hosted on this server, each with its own handle
allocator and Trove backing store.

Registry persists collection records in a BoltDB bucket, one entry per
fs_id, and keeps an in-memory index from name and from fs_id to the
record plus its live handle.Allocator and trove.Store. fs_id collisions
are refused at Create; Remove either requires the collection be empty of
dataspaces or, with purge=true, deletes every dataspace first.
*/
package collection
