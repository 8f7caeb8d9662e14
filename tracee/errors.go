package tracee

import "errors"

// Sentinel errors for the kernel-collaborator layer. debugger.errors
// re-exports these alongside the higher-level taxonomy (ErrSpuriousTrap,
// ErrNoCurrentBreakpoint, Message) so callers only need to import
// "debugger" for errors.Is checks, matching original_source/src/error.rs's
// single DebugError enum even though Go splits the taxonomy across
// packages by layer.
var (
	// ErrKernelTrace wraps a failed raw ptrace(2) call.
	ErrKernelTrace = errors.New("ptrace call failed")
	// ErrStopStatus wraps an unexpected or unparseable wait(2) status.
	ErrStopStatus = errors.New("unexpected stop status")
	// ErrIO wraps a /proc/<pid>/mem read or write failure.
	ErrIO = errors.New("tracee memory I/O failed")
	// ErrUnmappedAddress indicates an address outside any mapped region,
	// or a ptrace peek/poke that failed against a supposedly mapped one.
	ErrUnmappedAddress = errors.New("address is not mapped")
	// ErrParse wraps a /proc/<pid>/maps parse failure.
	ErrParse = errors.New("failed to parse /proc maps line")
)
