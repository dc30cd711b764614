// Package clock provides an injectable time source. Business logic never
// calls time.Now() directly (spec §9's "no global state" principle extended
// to wall-clock reads): the Orchestrator, Step Executor, Fill Resolver and
// Batch Runner take a Clock so tests can fix "now" and assert byte-equal
// briefings modulo timestamps (spec §8's round-trip law).
package clock

import "time"

// Clock abstracts the current time.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by the OS wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Fixed is a Clock that always returns the same instant. Used by
// deterministic tests and by the literal end-to-end scenarios in spec §8.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.At }
