package tracee

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Status wraps a raw wait(2) status and exposes the same predicates the
// original debugger's status type did: running/stopped/exited/signaled,
// plus the derived trapped/signal helpers used to decide how to handle a
// stop.
type Status struct {
	ws unix.WaitStatus
}

func newStatus(ws unix.WaitStatus) Status {
	return Status{ws: ws}
}

func (s Status) Exited() bool    { return s.ws.Exited() }
func (s Status) Signaled() bool  { return s.ws.Signaled() }
func (s Status) Stopped() bool   { return s.ws.Stopped() }
func (s Status) CoreDump() bool  { return s.ws.CoreDump() }
func (s Status) ExitStatus() int { return s.ws.ExitStatus() }

// Running reports whether the tracee should be considered alive and
// schedulable: neither exited, nor signal-killed, nor core-dumped. A
// stopped tracee counts as running whatever its stop signal.
func (s Status) Running() bool {
	if s.ws.Exited() || s.ws.Signaled() || s.ws.CoreDump() {
		return false
	}
	return true
}

// StopSignal returns the signal that caused a stop, if any.
func (s Status) StopSignal() (unix.Signal, bool) {
	if !s.ws.Stopped() {
		return 0, false
	}
	return s.ws.StopSignal(), true
}

// TermSignal returns the signal that terminated the tracee, if any.
func (s Status) TermSignal() (unix.Signal, bool) {
	if !s.ws.Signaled() {
		return 0, false
	}
	return s.ws.Signal(), true
}

// Trapped reports whether the stop was caused by SIGTRAP, the signal a
// software breakpoint (or PTRACE_SINGLESTEP) delivers.
func (s Status) Trapped() bool {
	sig, ok := s.StopSignal()
	return ok && sig == unix.SIGTRAP
}

func (s Status) String() string {
	switch {
	case s.ws.Exited():
		return fmt.Sprintf("exited(%d)", s.ws.ExitStatus())
	case s.ws.Signaled():
		return fmt.Sprintf("signaled(%s)", s.ws.Signal())
	case s.ws.Stopped():
		return fmt.Sprintf("stopped(%s)", s.ws.StopSignal())
	default:
		return fmt.Sprintf("status(%#x)", uint32(s.ws))
	}
}
