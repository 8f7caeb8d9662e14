// Package debugger implements Session, spec.md §4.5's top-level driver:
// the state machine, the run/continue/single-step/phantom-call
// operations, and breakpoint/action registration and dispatch. Grounded
// on original_source/src/debugger.rs's Debugger in full.
package debugger

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kstephano-forks/rdbgo/breakpoint"
	"github.com/kstephano-forks/rdbgo/internal/rdlog"
	"github.com/kstephano-forks/rdbgo/phantom"
	"github.com/kstephano-forks/rdbgo/regs"
	"github.com/kstephano-forks/rdbgo/tracee"
)

// State is a Session's position in the Fresh -> Running -> Stopped ->
// Exited state machine of spec.md §4.5. Running is transient: no
// observer ever sees a Session parked in Running, since every operation
// that enters it blocks in Tracee.Wait until the next Stopped or Exited.
type State int

const (
	StateFresh State = iota
	StateRunning
	StateStopped
	StateExited
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Action is a user-registered callback invoked when the session stops.
type Action func(*Session)

// Session is the programmable debugger handle: one tracee, its
// breakpoints, its in-flight phantom calls, and the callbacks registered
// against both specific addresses and every stop.
type Session struct {
	t        *tracee.Tracee
	bps      *breakpoint.Table
	byName   map[string]*breakpoint.Breakpoint
	phantoms *phantom.Stack

	actionsAt map[tracee.Addr][]Action
	actions   []Action

	state State
	pc    tracee.Addr

	logLevel LogLevel
}

// New spawns path under trace and returns a fresh Session stopped at the
// tracee's initial entry stop. Ported from debugger.rs's new()/spawn().
func New(path string, args []string, opts ...Option) (*Session, error) {
	t, err := tracee.Spawn(path, args)
	if err != nil {
		return nil, err
	}
	return newSession(t, opts...)
}

// Attach attaches to an already-running process and returns a Session
// stopped at wherever that process happened to be.
func Attach(pid int, opts ...Option) (*Session, error) {
	t, err := tracee.Attach(pid)
	if err != nil {
		return nil, err
	}
	return newSession(t, opts...)
}

func newSession(t *tracee.Tracee, opts ...Option) (*Session, error) {
	s := &Session{
		t:         t,
		bps:       breakpoint.NewTable(),
		byName:    make(map[string]*breakpoint.Breakpoint),
		phantoms:  phantom.NewStack(t),
		actionsAt: make(map[tracee.Addr][]Action),
		state:     StateFresh,
	}
	for _, opt := range opts {
		opt(s)
	}

	raw, err := t.GetRegs()
	if err != nil {
		return nil, err
	}
	s.pc = regs.FromPtraceRegs(raw).IP()

	return s, nil
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// PC returns the current program counter, the Go equivalent of
// original_source/src/debugger.rs's pc! macro.
func (s *Session) PC() (tracee.Addr, error) {
	if s.state == StateExited {
		return 0, fmt.Errorf("debugger: session has exited")
	}
	return s.pc, nil
}

// Tracee exposes the underlying kernel collaborator for callers that
// need direct register/memory access (e.g. to build a memory.Map over
// the same pid).
func (s *Session) Tracee() *tracee.Tracee { return s.t }

// Breakpoint installs a permanent breakpoint at addr, keyed in the table
// at addr+1 per spec.md §9.
func (s *Session) Breakpoint(addr tracee.Addr, name string) (*breakpoint.Breakpoint, error) {
	return s.installBreakpoint(addr, name, false)
}

// TemporaryBreakpoint installs a one-shot breakpoint at addr.
func (s *Session) TemporaryBreakpoint(addr tracee.Addr, name string) (*breakpoint.Breakpoint, error) {
	return s.installBreakpoint(addr, name, true)
}

func (s *Session) installBreakpoint(addr tracee.Addr, name string, temporary bool) (*breakpoint.Breakpoint, error) {
	bp, err := breakpoint.New(s.t, addr, name)
	if err != nil {
		return nil, err
	}
	if temporary {
		if err := bp.SetTemporary(true); err != nil {
			return nil, err
		}
	}
	s.bps.Insert(bp)
	if name != "" {
		s.byName[name] = bp
	}
	s.logBreakpoint("breakpoint.install", logrus.Fields{"addr": addr.String(), "name": name, "temporary": temporary})
	return bp, nil
}

// BreakpointNamed looks up a previously installed breakpoint by name,
// the Go equivalent of original_source/src/debugger.rs's bp! macro.
func (s *Session) BreakpointNamed(name string) (*breakpoint.Breakpoint, bool) {
	bp, ok := s.byName[name]
	return bp, ok
}

// CurrentBreakpoint returns the breakpoint the session is stopped at, if
// any.
func (s *Session) CurrentBreakpoint() (*breakpoint.Breakpoint, bool) {
	if s.state != StateStopped {
		return nil, false
	}
	bp := s.bps.Active(s.pc)
	return bp, bp != nil
}

// RegisterActionAt registers fn to run whenever the session stops with
// the program counter at addr (stored at addr+1 internally, consistent
// with breakpoint.Table's keying).
func (s *Session) RegisterActionAt(addr tracee.Addr, fn Action) {
	key := addr + 1
	s.actionsAt[key] = append(s.actionsAt[key], fn)
}

// ClearActionsAt removes every action registered at addr.
func (s *Session) ClearActionsAt(addr tracee.Addr) {
	delete(s.actionsAt, addr+1)
}

// RegisterAction registers fn to run on every stop, after any
// address-specific actions.
func (s *Session) RegisterAction(fn Action) {
	s.actions = append(s.actions, fn)
}

// Run continues the tracee and waits for its next stop. If the tracee
// exits, Run returns without dispatching any callbacks. Ported from
// debugger.rs's run().
func (s *Session) Run() error {
	s.logCommand("run", logrus.Fields{"pid": s.t.Pid()})

	s.state = StateRunning
	if err := s.t.Cont(); err != nil {
		return err
	}
	st, err := s.t.Wait()
	if err != nil {
		return err
	}
	return s.handleStop(st)
}

// Continue resumes the tracee. If currently stopped at a known
// breakpoint, it delegates to that breakpoint's own Continue (the
// restore/step/rearm/continue protocol); otherwise it performs a raw
// continue-and-wait. A trap received while not at any known, active
// breakpoint surfaces as ErrSpuriousTrap. Ported from debugger.rs's
// cont().
func (s *Session) Continue() error {
	s.logCommand("continue", nil)

	bp, atBreakpoint := s.CurrentBreakpoint()
	s.state = StateRunning

	var st tracee.Status
	var err error
	if atBreakpoint {
		st, err = bp.Continue()
	} else if err = s.t.Cont(); err == nil {
		st, err = s.t.Wait()
	}
	if err != nil {
		return err
	}
	if st.Trapped() {
		pc, perr := s.currentPC()
		if perr != nil {
			return perr
		}
		if s.bps.Active(pc) == nil && !s.phantoms.IsAtExit(pc) {
			return fmt.Errorf("%w: pc=%s", ErrSpuriousTrap, pc)
		}
	}
	return s.handleStop(st)
}

func (s *Session) currentPC() (tracee.Addr, error) {
	raw, err := s.t.GetRegs()
	if err != nil {
		return 0, err
	}
	return regs.FromPtraceRegs(raw).IP(), nil
}

// ContinueOrPanic is the Go equivalent of original_source/src/
// debugger.rs's cont! macro: a terse, panic-on-error convenience wrapper
// for host programs and examples that want to write straight-line
// scripts without checking every Continue() error.
func (s *Session) ContinueOrPanic() {
	if err := s.Continue(); err != nil {
		panic(err)
	}
}

// SingleStep executes exactly one instruction and waits for the
// resulting stop.
func (s *Session) SingleStep() error {
	s.logCommand("single step", nil)

	s.state = StateRunning
	if err := s.t.Step(); err != nil {
		return err
	}
	st, err := s.t.Wait()
	if err != nil {
		return err
	}
	return s.handleStop(st)
}

// PhantomCall synthesizes a call to addr with args, returning once the
// call returns through one of exits. The current register state is
// snapshotted and restored (with IP rewound by one byte) once the call
// completes, so the call is fully transparent to the host debugging
// session. It requires the session to currently be stopped at a known
// breakpoint, exactly as debugger.rs's phantom_call() does by routing
// entry through current_breakpoint()?.phantom_call(addr)?; callers that
// are not at one get ErrNoCurrentBreakpoint instead of a half-entered
// call. The return value is the resulting instruction pointer once the
// call has unwound back through on_break, not the callee's return value
// in rax; the callee's rax is not observable after PhantomCall returns,
// because the pre-call register snapshot has already been written back
// by then. Ported from debugger.rs's phantom_call().
func (s *Session) PhantomCall(addr tracee.Addr, args []uint64, exits []tracee.Addr) (tracee.Addr, error) {
	s.logCommand("phantom call", logrus.Fields{"addr": addr.String()})

	bp, ok := s.CurrentBreakpoint()
	if !ok {
		return 0, ErrNoCurrentBreakpoint
	}

	raw, err := s.t.GetRegs()
	if err != nil {
		return 0, err
	}
	current := regs.FromPtraceRegs(raw)

	// argRegs is a clone of current with the six argument-passing
	// registers set and, for args beyond the sixth, the tracee's stack
	// already written via real pokes and SP decremented to match; its
	// ip/sp/bp otherwise still equal current's, so applying it live does
	// not disturb control flow beyond the intended stack growth.
	argRegs, err := regs.MarshalArgs(s.t, current, args)
	if err != nil {
		return 0, err
	}

	if _, err := s.phantoms.Push(current, exits); err != nil {
		return 0, err
	}

	if err := argRegs.ApplyTo(s.t); err != nil {
		return 0, err
	}

	st, err := bp.PhantomEntry(addr)
	if err != nil {
		return 0, err
	}

	s.state = StateRunning
	if err := s.handleStop(st); err != nil {
		return 0, err
	}

	return s.pc, nil
}

// handleStop updates state from a wait status and, if the tracee is
// still alive, runs onBreak().
func (s *Session) handleStop(st tracee.Status) error {
	if st.Exited() || st.Signaled() {
		s.state = StateExited
		return nil
	}
	if !st.Stopped() {
		return fmt.Errorf("%w: %s", ErrStopStatus, st)
	}

	raw, err := s.t.GetRegs()
	if err != nil {
		return err
	}
	s.pc = regs.FromPtraceRegs(raw).IP()
	s.state = StateStopped

	s.logBreakpoint("session.stopped", logrus.Fields{"pc": s.pc.String()})

	return s.onBreak()
}

// onBreak dispatches callbacks in the mandated order: phantom-stack exit
// cleanup first, then per-address actions at the current PC, then global
// actions. Ported verbatim from debugger.rs's on_break().
func (s *Session) onBreak() error {
	if s.phantoms.IsAtExit(s.pc) {
		st, err := s.phantoms.Clean(s.pc)
		if err != nil {
			return err
		}
		return s.handleStop(st)
	}

	if fns, ok := s.actionsAt[s.pc]; ok {
		for _, fn := range fns {
			fn(s)
		}
	}

	for _, fn := range s.actions {
		fn(s)
	}

	return nil
}

func (s *Session) logBreakpoint(event string, fields logrus.Fields) {
	if s.logLevel.has(LogBreakpoints) {
		rdlog.Breakpoint(event, fields)
	}
}

func (s *Session) logCommand(event string, fields logrus.Fields) {
	if s.logLevel.has(LogCommands) {
		rdlog.Command(event, fields)
	}
}
