/*
Package handle implements Trove's handle allocator (component A): it
issues unused handles within a collection's configured range and
reclaims them on delete.

Allocation prefers the numerically smallest free handle, so directory
listings built by walking the backing store stay compact. The allocator
itself holds no durable state of its own — the live set is whatever the
backing-store driver reports from a directory scan at startup — so
Recover must be called with that scan's result before serving requests.
*/
package handle
