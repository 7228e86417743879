package defs

// MapFlags is the access-flag set F carried by a mapping card and by the
// backings it produces (spec.md §3: F ⊆ {R, W, X, Anon, Phys}).
type MapFlags uint

const (
	FlagR MapFlags = 1 << iota
	FlagW
	FlagX
	FlagAnon
	FlagPhys

	// UserAllowed marks flags a user map() syscall may request directly;
	// everything else is kernel-internal bookkeeping on the card.
	UserAllowed = FlagR | FlagW | FlagX | FlagAnon | FlagPhys
)

// ProcFlags is the process ipc_state / scheduling flag set (spec.md §3).
type ProcFlags uint

const (
	Queued ProcFlags = 1 << iota
	FastRet
	InRecv
	InSend
	Running
	PFault
)

// IpcState is the subset of ProcFlags that participates in rendezvous
// matching; IsRunnable (spec.md §4.2) holds when none of these are set.
const IpcState = InRecv | InSend | PFault
