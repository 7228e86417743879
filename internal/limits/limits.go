// Package limits tracks system-wide resource ceilings, following the
// teacher's Sysatomic_t take/give idiom (biscuit/src/limits/limits.go) so
// exhaustion is always a Taken()-returns-false check rather than a counted
// allocation that can go negative silently.
package limits

import "unsafe"
import "sync/atomic"

// Sysatomic_t is a numeric limit that can be atomically updated.
type Sysatomic_t int64

// Syslimit_t holds the system-wide resource ceilings for this kernel core.
// No other package of the core calls Take or Give on them, so none of
// these counts is enforced anywhere.
type Syslimit_t struct {
	// Processes admitted by boot + new-process.
	Procs Sysatomic_t
	// Handles across all processes.
	Handles Sysatomic_t
	// Mapping cards across all address spaces.
	Cards Sysatomic_t
	// Backings across all address spaces.
	Backings Sysatomic_t
	// Sharing nodes across all address spaces.
	Sharings Sysatomic_t
}

// Syslimit describes the configured system-wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

// MkSysLimit returns a pointer to the default set of limits. Values are
// generous relative to this core's target scale (single machine, a few
// dozen processes) rather than Biscuit's multi-user server sizing.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Procs:    4096,
		Handles:  1 << 16,
		Cards:    1 << 18,
		Backings: 1 << 20,
		Sharings: 1 << 18,
	}
}

func (s *Sysatomic_t) aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(s.aptr(), int64(n))
}

// Taken tries to decrement the limit by the provided amount. It returns
// true on success and leaves the limit unchanged on failure.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64(s.aptr(), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s.aptr(), int64(n))
	return false
}

// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
