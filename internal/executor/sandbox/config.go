package sandbox

import "time"

// Config bounds a single execution. Every limit exists because user code is
// adversarial by assumption; none of them can be disabled, only resized.
type Config struct {
	// Timeout is the wall-clock budget for one execution, measured from the
	// moment a concurrency slot is acquired.
	Timeout time.Duration

	// MaxConcurrent caps how many executions run at once. Further requests
	// wait for a slot (or for their context to expire) instead of failing.
	MaxConcurrent int

	// MaxOutputBytes caps captured stdout and stderr, each. Output beyond the
	// cap aborts the run; bytes written before the cap are preserved.
	MaxOutputBytes int

	// MaxSteps caps interpreter steps (statements, loop iterations, calls).
	MaxSteps int64

	// MaxRecursion caps user function call depth.
	MaxRecursion int
}

// DefaultConfig returns the limits used in production.
func DefaultConfig() Config {
	return Config{
		Timeout:        5 * time.Second,
		MaxConcurrent:  4,
		MaxOutputBytes: 1 << 20,
		MaxSteps:       10_000_000,
		MaxRecursion:   200,
	}
}
