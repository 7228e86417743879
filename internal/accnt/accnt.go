// Package accnt accumulates per-process CPU-time accounting, following the
// teacher's Accnt_t (biscuit/src/accnt/accnt.go) pared down to user/system
// nanoseconds, no rusage encoding since there is no filesystem ABI to
// serialize it onto. The diagnostics dump (internal/diag.Dump) does not
// report these values.
package accnt

import "sync"
import "sync/atomic"
import "time"

// Accnt_t accumulates per-process accounting information. Both Userns and
// Sysns store runtime in nanoseconds. The embedded mutex lets Add/Fetch
// take a consistent snapshot even though the single-CPU cooperative model
// (spec.md §5) makes it uncontended in practice.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

// Finish adds the time elapsed since start to the system-time counter; call
// on return to userspace to close out the kernel-side portion of a syscall.
func (a *Accnt_t) Finish(start time.Time) {
	a.Systadd(int64(time.Since(start)))
}

// Add merges another accounting record into this one.
func (a *Accnt_t) Add(n *Accnt_t) {
	a.Lock()
	a.Userns += n.Userns
	a.Sysns += n.Sysns
	a.Unlock()
}

// Fetch returns a consistent (Userns, Sysns) snapshot.
func (a *Accnt_t) Fetch() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}
