/*
Package perfmon implements the per-server performance counter ring
backing the `perfmon <mount>` CLI command: a fixed-size HISTORY ring of
`{id, start_time_ms, read_bytes, write_bytes, md_read_count,
md_write_count, valid}` entries, sampled at a fixed interval from
counters Trove ops feed in as they complete. A consumer polling less
often than the sample interval sees synthetic valid=false entries for
any ids that fell out of the ring before it could read them.

The Recorder samples on a ticker until its stop channel closes; the
ring follows src/apps/admin/pvfs2-perf-mon-example.c's HISTORY-sized
ring and VALID_FLAG gap semantics.
*/
package perfmon
