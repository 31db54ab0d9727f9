/*
Package scheduler implements the request scheduler (component E): a
per-handle FIFO token scheduler serializing access under shared,
exclusive, and bypass concurrency modes.

For each handle, at most one of {an exclusive holder, any number of
shared holders, no holder} is true at any instant. Bypass-mode requests
proceed concurrently with shared and other bypass requests but must
wait out a pending exclusive holder.

Post enqueues a request and returns a SchedID immediately; the caller
polls Test or blocks on the per-SchedID completion channel until the
token becomes ready, times out, or is cancelled. Release hands the
token back and applies the wake policy described on Scheduler.release.
*/
package scheduler
