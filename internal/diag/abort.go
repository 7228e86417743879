package diag

import (
	"fmt"

	"kernel/internal/arch"
	"kernel/internal/console"
)

// haltForever is swapped out in tests; a real boot image's architecture
// glue installs the "cli; hlt" loop here (spec.md §1 out-of-scope).
var haltForever = func() { select {} }

// Abort implements spec.md §7's contract-violation path: print msg and the
// faulting register file in the distinctive abort colour, then halt the
// CPU forever. Never returns. Called from every kernel invariant check
// that is not itself a user-triggerable policy failure (wrong handle
// granted, unpaired send, popping an unqueued item, a supervisor-mode page
// fault, and so on) — see the panic() call sites across internal/ipc,
// internal/proc, and internal/dlist, which cmd/kernel's recover()
// forwards here.
func Abort(con *console.Console, msg string, regs *arch.Regs) {
	if con != nil {
		con.SetAttr(console.AttrAbort)
		con.WriteString(fmt.Sprintf("PANIC: %s\n", msg))
		if regs != nil {
			con.WriteString(fmt.Sprintf(
				"rax=%#x rdi=%#x rsi=%#x rdx=%#x r10=%#x r8=%#x r9=%#x rip=%#x\n",
				regs.RAX, regs.RDI, regs.RSI, regs.RDX, regs.R10, regs.R8, regs.R9, regs.RIP))
		}
		Callerdump(2)
	}
	fmt.Printf("PANIC: %s\n", msg)
	haltForever()
}
