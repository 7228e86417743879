package sched

import (
	"testing"

	"kernel/internal/defs"
	"kernel/internal/proc"
)

func TestQueueIsIdempotent(t *testing.T) {
	c := New()
	p := proc.New(1, nil)
	c.Queue(p)
	c.Queue(p)
	if c.RunQ.Len() != 1 {
		t.Fatalf("RunQ len = %d, want 1 (double-queue must be a no-op)", c.RunQ.Len())
	}
	if !p.IsQueued() {
		t.Fatalf("process should be marked Queued")
	}
}

func TestRunFIFO(t *testing.T) {
	c := New()
	p1 := proc.New(1, nil)
	p2 := proc.New(2, nil)
	c.Queue(p1)
	c.Queue(p2)

	var order []uint64
	resume := func(p *proc.Process, cr3Changed bool) {
		order = append(order, p.ID)
	}
	c.Run(resume, func() { t.Fatalf("halt should not be called with a non-empty queue") })
	c.Run(resume, func() { t.Fatalf("halt should not be called with a non-empty queue") })

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("run order = %v, want [1 2]", order)
	}
	if p1.IsQueued() || p2.IsQueued() {
		t.Fatalf("processes should be dequeued after Run")
	}
}

func TestRunIdlesOnEmptyQueue(t *testing.T) {
	c := New()
	c.Current = proc.New(1, nil)
	halted := false
	c.Run(func(p *proc.Process, cr3Changed bool) {
		t.Fatalf("resume should not be called with an empty queue")
	}, func() { halted = true })

	if !halted {
		t.Fatalf("expected halt to be called")
	}
	if c.Current != nil {
		t.Fatalf("Current should be cleared on idle")
	}
}

func TestSwitchToSetsRunningAndCurrent(t *testing.T) {
	c := New()
	p := proc.New(1, nil)
	var gotChanged bool
	c.SwitchTo(p, func(p *proc.Process, cr3Changed bool) {
		gotChanged = cr3Changed
	})
	if c.Current != p {
		t.Fatalf("Current not updated")
	}
	if !p.TestFlag(defs.Running) {
		t.Fatalf("Running flag not set")
	}
	if !gotChanged {
		t.Fatalf("cr3Changed should be true switching from no process")
	}
}

func TestLeaveProcClearsRunning(t *testing.T) {
	c := New()
	p := proc.New(1, nil)
	p.SetFlag(defs.Running)
	c.LeaveProc(p)
	if p.TestFlag(defs.Running) {
		t.Fatalf("Running still set after LeaveProc")
	}
}

func TestIRQBitRange(t *testing.T) {
	if IRQBit(32) != 1 {
		t.Fatalf("IRQBit(32) = %#x, want 1", IRQBit(32))
	}
	if IRQBit(48) != 1<<16 {
		t.Fatalf("IRQBit(48) = %#x, want 1<<16", IRQBit(48))
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for out-of-range vector")
		}
	}()
	IRQBit(49)
}
