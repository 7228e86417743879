// Package syscall multiplexes the numbered operations of spec.md §4.6 to
// the IPC engine, address space, handle table, and port I/O (component h).
//
// Grounded on the teacher's chentry.go syscall-number-to-handler switch
// shape and biscuit/src/defs's constant organisation, generalized from
// Biscuit's Unix-style syscall table to this core's much smaller
// microkernel one.
package syscall

import (
	"os"

	"kernel/internal/arch"
	"kernel/internal/console"
	"kernel/internal/defs"
	"kernel/internal/diag"
	"kernel/internal/frame"
	"kernel/internal/ipc"
	"kernel/internal/proc"
	"kernel/internal/sched"
)

// Env bundles the kernel singletons a syscall handler needs: the frame
// allocator, the console, the port-I/O seam (spec.md §1 out-of-scope,
// satisfied by architecture glue outside this repo), and the counter
// snapshot the D_PROF debug dump samples.
type Env struct {
	Frame    *frame.Allocator
	Con      *console.Console
	Port     arch.PortIO
	Counters func() diag.Counters
}

// Dispatch handles one syscall entry for p, whose saved register frame
// (spec.md §6 ABI: selector in RAX, args in RDI/RSI/RDX/R10/R8/R9) has
// already been populated by the out-of-scope trap stub. It returns nothing:
// results are written into the saved registers of the processes involved.
// Resuming the process that ends up runnable next is not this function's
// job — callers must follow Dispatch with pc.Run to actually resume
// whichever process is now head of the run queue; see DESIGN.md for why
// dispatch and dispatch-time scheduling are kept separate.
func Dispatch(env *Env, pc *sched.PerCPU, p *proc.Process) {
	nr := p.Regs.RAX
	switch {
	case nr == defs.SysRecv:
		delivered, errc := ipc.Recv(p, pc, p.Regs.RDI)
		if !delivered {
			p.Regs.RAX = uint64(errc)
		}

	case nr == defs.SysMap:
		doMap(env, p)

	case nr == defs.SysPfault:
		vaddr, access := p.Regs.RDI, defs.MapFlags(p.Regs.RSI)
		errc := ipc.PageFault(p, pc, env.Frame, vaddr, access)
		if errc != defs.Success {
			p.Regs.RAX = uint64(errc)
		}

	case nr == defs.SysUnmap:
		p.Regs.RAX = uint64(defs.ENOSYS)

	case nr == defs.SysHmod:
		doHmod(p)

	case nr == defs.SysWrite:
		if env.Con != nil {
			env.Con.Write(byte(p.Regs.RDI))
		}
		p.Regs.RAX = uint64(defs.Success)

	case nr == defs.SysPortio:
		doPortio(env, p)

	case nr == defs.SysGrant:
		errc := ipc.Grant(p, pc, env.Frame, p.Regs.RDI, p.Regs.RSI, defs.MapFlags(p.Regs.RDX))
		p.Regs.RAX = uint64(errc)

	case nr == defs.SysPulse:
		errc := ipc.Pulse(p, pc, p.Regs.RDI, p.Regs.RSI)
		p.Regs.RAX = uint64(errc)

	case nr >= defs.MsgUserFirst:
		doUserIPC(p, pc, nr)

	default:
		diag.Abort(env.Con, "unknown syscall number", &p.Regs)
	}
}

// doMap implements NR 1: map_range(addr, addr+size, handle, ...) with the
// DMA substitution spec.md §4.6 describes: if prot requests both Phys and
// Anon, the kernel allocates a frame itself, eagerly, and substitutes its
// physical address for the caller-supplied offset before installing the
// card. Exhaustion of that eager allocation is the policy failure spec.md
// §7 names explicitly: map returns 0, not ENOMEM.
func doMap(env *Env, p *proc.Process) {
	handle := p.Regs.RDI
	prot := defs.MapFlags(p.Regs.RSI) & defs.UserAllowed
	addr := p.Regs.RDX
	offset := p.Regs.R10
	size := p.Regs.R8

	off := int64(offset) - int64(addr)

	if prot&(defs.FlagPhys|defs.FlagAnon) == (defs.FlagPhys | defs.FlagAnon) {
		phys, ok := env.Frame.Alloc()
		if !ok {
			p.Regs.RAX = 0
			return
		}
		off = int64(phys) - int64(addr)
	}

	p.Space.MapRange(addr, addr+size, handle, off, prot)
	p.Regs.RAX = uint64(off)
}

// doHmod implements NR 4: hmod(id, rename, copy).
func doHmod(p *proc.Process) {
	id, rename, cp := p.Regs.RDI, p.Regs.RSI, p.Regs.RDX
	if cp != 0 {
		if _, errc := p.AliasHandle(id, cp); errc != defs.Success {
			p.Regs.RAX = uint64(errc)
			return
		}
	}
	if rename == 0 {
		p.DeleteHandle(id)
	} else if rename != id {
		p.Regs.RAX = uint64(p.RenameHandle(id, rename))
		return
	}
	p.Regs.RAX = uint64(defs.Success)
}

// doPortio implements NR 7: a single in/out of 1, 2, or 4 bytes, with op
// encoding width and direction (spec.md §4.6). An unrecognised op is a
// contract violation (spec.md §7: "should be rejected", but the source
// panics) rather than a policy failure.
func doPortio(env *Env, p *proc.Process) {
	port := uint16(p.Regs.RDI)
	op := defs.PortioOp(p.Regs.RSI)
	data := p.Regs.RDX

	if int(port) == defs.D_PROF {
		doDebugDump(env, p)
		return
	}

	if env.Port == nil {
		diag.Abort(env.Con, "portio: no port-I/O backend wired", &p.Regs)
	}

	switch op {
	case defs.PortioIn8:
		p.Regs.RAX = uint64(env.Port.In8(port))
	case defs.PortioIn16:
		p.Regs.RAX = uint64(env.Port.In16(port))
	case defs.PortioIn32:
		p.Regs.RAX = uint64(env.Port.In32(port))
	case defs.PortioOut8:
		env.Port.Out8(port, uint8(data))
		p.Regs.RAX = uint64(defs.Success)
	case defs.PortioOut16:
		env.Port.Out16(port, uint16(data))
		p.Regs.RAX = uint64(defs.Success)
	case defs.PortioOut32:
		env.Port.Out32(port, uint32(data))
		p.Regs.RAX = uint64(defs.Success)
	default:
		diag.Abort(env.Con, "portio: unknown op code", &p.Regs)
	}
}

// doDebugDump implements the D_PROF device (spec.md §1b): a snapshot of
// per-component counters, pprof-encoded and written to the diagnostic
// output, never to env.Port. The op/data arguments are ignored; naming
// D_PROF as the port is what triggers it.
func doDebugDump(env *Env, p *proc.Process) {
	if env.Counters == nil {
		p.Regs.RAX = uint64(defs.ENOSYS)
		return
	}
	if err := diag.Dump(os.Stdout, env.Counters()); err != nil {
		p.Regs.RAX = uint64(defs.EINVAL)
		return
	}
	p.Regs.RAX = uint64(defs.Success)
}

// doUserIPC implements the NR >= 16 branch: bits 8-9 of the code select
// call versus send framing (spec.md §4.5, §4.6).
func doUserIPC(p *proc.Process, pc *sched.PerCPU, code uint64) {
	target := p.Regs.RDI
	a1, a2, a3, a4, a5 := p.Regs.RSI, p.Regs.RDX, p.Regs.R8, p.Regs.R9, p.Regs.R10
	var errc defs.Err_t
	if defs.IsCall(code) {
		errc = ipc.Call(p, pc, target, code, a1, a2, a3, a4, a5)
	} else {
		errc = ipc.Send(p, pc, target, code, a1, a2, a3, a4, a5)
	}
	if errc != defs.Success {
		p.Regs.RAX = uint64(errc)
	}
}
