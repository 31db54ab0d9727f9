/*
Package sidcache implements the SID cache (component F): an in-memory
index of the cluster's server identities, keyed by a 128-bit SID and
augmented by an attribute secondary index and a (role, fs_id) type
index, with a persistable text snapshot format.

The primary store and the type index are two independently-maintained
maps: Cache.records holds each SID's full record including its type
bindings, while Cache.typeIndex holds the reverse mapping from (role,
fs_id) to the set of SIDs advertising it. Every mutation keeps both in
sync; Save/Load round-trips both from one text format.
*/
package sidcache
