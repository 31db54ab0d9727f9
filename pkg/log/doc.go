/*
Package log provides structured logging for Trove using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable levels, and helpers for
the entities Trove operations are scoped to: collections, handles, and
SIDs. All logs include timestamps and support filtering by severity.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Str("handle", h.String()).Msg("token ready")

	collLog := log.WithCollection(schedLog, "coll-9")
	collLog.Warn().Msg("degraded: repeated IO_ERROR")

JSON output is intended for production; console output trades structure
for readability during development. Neither is buffered by this package —
wrap Output in a buffered writer if log volume demands it.
*/
package log
