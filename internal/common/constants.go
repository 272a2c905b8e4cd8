package common

import "time"

// Engine policy defaults. These bound retry and staleness behavior when the
// configuration does not override them.
const (
	// DefaultMaxRetries is the per-item retry ceiling. An item that has
	// already been retried this many times is never re-dispatched.
	DefaultMaxRetries = 3

	// DefaultStaleThreshold is how long a processing item may sit without
	// completing before another caller may reclaim it.
	DefaultStaleThreshold = 10 * time.Minute

	// DefaultDelayBetweenProspectsMs is the post-item pacing delay applied
	// when a job does not set its own.
	DefaultDelayBetweenProspectsMs = 1000

	// DefaultProcessTimeout bounds a single process-next invocation.
	DefaultProcessTimeout = 120 * time.Second
)
