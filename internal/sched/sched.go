// Package sched implements the single logical CPU's run queue, context
// switch, and idle loop (spec.md §4.4 — component f). There is no
// preemption and no SMP (Non-goals, spec.md §1): exactly one PerCPU value
// exists in a running kernel.
//
// Grounded on the single active per-CPU struct pattern seen across the
// example pack's kernel entry points (a per-CPU aggregate holding the
// current process, its run queue, and IRQ bookkeeping), narrowed here to
// this spec's one-logical-CPU model.
package sched

import (
	"kernel/internal/defs"
	"kernel/internal/dlist"
	"kernel/internal/proc"
)

// PerCPU holds the one logical CPU's scheduling state.
type PerCPU struct {
	Current    *proc.Process
	RunQ       dlist.List[*proc.Process]
	IRQProcess *proc.Process

	// IRQDelayed accumulates bits for vectors 32..48 that arrived while
	// IRQProcess was not in a matching receive (spec.md §4.4).
	IRQDelayed uint32
}

// New returns an idle PerCPU with nothing running and an empty run queue.
func New() *PerCPU {
	return &PerCPU{}
}

// IRQBit returns the accumulator bit for hardware vector vec. Panics if
// vec is outside the allowed 32..48 range (spec.md §4.4).
func IRQBit(vec int) uint32 {
	if vec < 32 || vec > 48 {
		panic("sched: irq vector out of range")
	}
	return 1 << uint(vec-32)
}

// Queue admits p to the run queue if it is not already queued.
func (c *PerCPU) Queue(p *proc.Process) {
	if p.IsQueued() {
		return
	}
	p.SetFlag(defs.Queued)
	e := c.RunQ.PushBack(p)
	p.SetQueueElem(e)
}

// Run pops the queue head and switches to it via resume, or idles via
// halt if the queue is empty.
func (c *PerCPU) Run(resume func(p *proc.Process, cr3Changed bool), halt func()) {
	p, ok := c.RunQ.PopFront()
	if !ok {
		c.Idle(halt)
		return
	}
	p.ClearFlag(defs.Queued)
	p.SetQueueElem(nil)
	c.SwitchTo(p, resume)
}

// SwitchTo implements spec.md §4.4's switch_to: marks p Running, records
// it as current, and determines whether cr3 must be reloaded, then hands
// off to resume — the actual fast-return/full-restore register and cr3
// load is architecture glue, out of scope (spec.md §1).
func (c *PerCPU) SwitchTo(p *proc.Process, resume func(p *proc.Process, cr3Changed bool)) {
	changed := c.Current == nil || c.Current.Space == nil || p.Space == nil ||
		c.Current.Space.CR3() != p.Space.CR3()
	p.SetFlag(defs.Running)
	c.Current = p
	resume(p, changed)
}

// LeaveProc clears Running on the outgoing process on entry from
// userspace (spec.md §4.4).
func (c *PerCPU) LeaveProc(p *proc.Process) {
	p.ClearFlag(defs.Running)
}

// Idle clears the current process and hands off to halt, which enables
// interrupts, halts, and disables interrupts again — the one instruction
// sequence the single-CPU cooperative model runs with interrupts enabled
// (spec.md §5); architecture glue, out of scope.
func (c *PerCPU) Idle(halt func()) {
	c.Current = nil
	halt()
}
