/*
Package log provides structured logging for the scheduler core using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level.

# Usage

Initializing the logger:

	import "github.com/cuemby/bfqsched/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Msg("selected in-service queue")

	qLog := log.WithQueueID(strconv.FormatUint(q.ID, 10))
	qLog.Debug().Uint64("sector", rq.Sector).Msg("next request chosen")

	grpLog := log.WithGroupID(strconv.FormatUint(g.ID, 10))
	grpLog.Debug().Uint64("v", uint64(v)).Msg("virtual time advanced")

# Log levels

The scheduler core logs queue activations at Debug and
resource-exhaustion fallbacks (§7) at Warn; it emits no Info-level
entries of its own. The scheduler never
synthesizes Error-level entries for ordinary device I/O failures —
those are the device's to report, not the scheduler's.
*/
package log
