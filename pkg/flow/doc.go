/*
Package flow implements the flow engine (component G): a bounded
buffer-pool pipelined mover between a network stream and a Trove
bstream region list.

A Flow reads sequential chunks from its source into buffers drawn from a
fixed-size pool, and writes each chunk to its sink in order, so that at
most buffer_count*buffer_size bytes are ever resident at once regardless
of total transfer size. Cancellation is cooperative: cancelling the
Run context stops new chunks from being posted and drains in-flight
buffers before returning, reporting the largest contiguous prefix that
reached both ends.
*/
package flow
