package debugger

import (
	"errors"
	"fmt"

	"github.com/kstephano-forks/rdbgo/tracee"
)

// Re-exported kernel-collaborator errors, so callers only need to import
// "debugger" for errors.Is checks against the full taxonomy spec.md §7
// describes, even though the lower layers of this module raise some of
// them directly.
var (
	ErrKernelTrace     = tracee.ErrKernelTrace
	ErrStopStatus      = tracee.ErrStopStatus
	ErrIO              = tracee.ErrIO
	ErrUnmappedAddress = tracee.ErrUnmappedAddress
	ErrParse           = tracee.ErrParse
)

var (
	// ErrSpuriousTrap indicates a SIGTRAP was received while not stopped
	// at any known, active breakpoint -- a trap this library did not
	// install and cannot account for. Ported from
	// original_source/src/debugger.rs's handle_status, which returns the
	// literal message "recieved SIGTRAP but not at actions_at breakpoint!"
	// for the same condition.
	ErrSpuriousTrap = errors.New("received SIGTRAP but not at a known breakpoint")

	// ErrNoCurrentBreakpoint indicates an operation that requires the
	// session to be currently stopped at a breakpoint (e.g. PhantomCall)
	// was invoked while not at one.
	ErrNoCurrentBreakpoint = errors.New("session is not currently stopped at a breakpoint")
)

// Message is the static-string escape hatch of spec.md §7's error
// taxonomy (original_source/src/error.rs's DebugError::Error(&'static
// str)), for diagnostics that don't fit any of the other typed errors.
func Message(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
