// Package phantom implements PhantomFrame/PhantomStack: the bookkeeping
// that lets a Session synthesize a function call inside the tracee and
// transparently resume the host program once that call returns.
// Grounded on original_source/src/phantom.rs's PhantomCall/PhantomManager.
package phantom

import (
	"fmt"

	"github.com/kstephano-forks/rdbgo/breakpoint"
	"github.com/kstephano-forks/rdbgo/regs"
	"github.com/kstephano-forks/rdbgo/tracee"
)

// Frame is one in-flight phantom call: the register snapshot to restore
// once it returns, and the temporary exit breakpoints guarding its
// possible return addresses.
type Frame struct {
	Restore regs.File
	Exits   []*breakpoint.Breakpoint
}

// Stack is the LIFO stack of in-flight phantom calls. Re-entrant
// PhantomCall invocations from within a callback push additional frames;
// IsAtExit and Clean only ever look at the top frame, so nested phantom
// calls resolve in strict LIFO order even if their exit addresses
// coincide.
type Stack struct {
	t     *tracee.Tracee
	frame []*Frame
}

// NewStack returns an empty phantom call stack over t.
func NewStack(t *tracee.Tracee) *Stack {
	return &Stack{t: t}
}

// Push records restore as the register state to return to, installs one
// temporary breakpoint per exit address, and pushes the resulting frame.
// Ported from phantom.rs's push().
func (s *Stack) Push(restore regs.File, exits []tracee.Addr) (*Frame, error) {
	bps := make([]*breakpoint.Breakpoint, 0, len(exits))
	for _, addr := range exits {
		name := fmt.Sprintf("<phantom_call_cleanup @ %s>", addr)
		bp, err := breakpoint.New(s.t, addr, name)
		if err != nil {
			return nil, fmt.Errorf("install phantom exit breakpoint: %w", err)
		}
		if err := bp.SetTemporary(true); err != nil {
			return nil, err
		}
		bps = append(bps, bp)
	}

	frame := &Frame{Restore: restore, Exits: bps}
	s.frame = append(s.frame, frame)
	return frame, nil
}

// IsAtExit reports whether the tracee is currently stopped at one of the
// top frame's exit breakpoints. Only the top frame is ever consulted,
// matching phantom.rs's is_exit (stack.last() only, not the full stack).
func (s *Stack) IsAtExit(currentIP tracee.Addr) bool {
	if len(s.frame) == 0 {
		return false
	}
	top := s.frame[len(s.frame)-1]
	pc := currentIP - 1
	for _, bp := range top.Exits {
		if bp.Addr() == pc {
			return true
		}
	}
	return false
}

// Clean pops the top frame, rewinds its saved register state's IP by one
// byte (undoing the trap the exit breakpoint just executed), restores
// those registers, and resumes the tracee. Returns the status of the
// resulting stop. Precondition: IsAtExit must currently hold.
// Ported from phantom.rs's clean().
func (s *Stack) Clean(currentIP tracee.Addr) (tracee.Status, error) {
	if !s.IsAtExit(currentIP) {
		return tracee.Status{}, fmt.Errorf("phantom: not at an exit breakpoint for the top frame")
	}

	n := len(s.frame)
	top := s.frame[n-1]
	s.frame = s.frame[:n-1]

	for _, bp := range top.Exits {
		_ = bp.Close()
	}

	top.Restore.SetIP(top.Restore.IP() - 1)

	if err := top.Restore.ApplyTo(s.t); err != nil {
		return tracee.Status{}, err
	}

	if err := s.t.Cont(); err != nil {
		return tracee.Status{}, err
	}
	return s.t.Wait()
}

// Len reports the current phantom-call nesting depth.
func (s *Stack) Len() int { return len(s.frame) }
