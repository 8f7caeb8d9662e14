// Package tracee is the kernel collaborator: it owns the traced process's
// pid, drives ptrace(2) directly, and decodes wait(2) statuses. Higher
// layers (regs, breakpoint, phantom, debugger) never touch unix.Ptrace*
// themselves; they go through a *Tracee.
package tracee

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Addr is a tracee virtual address.
type Addr uintptr

func (a Addr) String() string { return fmt.Sprintf("0x%x", uintptr(a)) }

// Word is a single machine word read from or written to tracee memory via
// PTRACE_PEEKTEXT/POKETEXT.
type Word uint64

// Tracee owns one traced pid and the raw ptrace calls against it. It is
// not safe for concurrent use, matching every layer above it.
type Tracee struct {
	pid     int
	cmd     *exec.Cmd // nil when attached to an already-running pid
	lastSig unix.Signal
}

// Spawn starts path under ptrace, following the fork+PTRACE_TRACEME+exec
// dance used by IreliaTable-gvisor's subprocess launcher: the child
// requests tracing of itself before exec, so the first stop the tracer
// observes is the post-exec SIGTRAP, not a race-prone PTRACE_ATTACH.
func Spawn(path string, args []string) (*Tracee, error) {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn under trace: %w", err)
	}

	t := &Tracee{pid: cmd.Process.Pid, cmd: cmd}

	if _, err := t.Wait(); err != nil {
		return nil, fmt.Errorf("wait for initial exec-stop: %w", err)
	}

	if err := t.setOptions(); err != nil {
		return nil, err
	}

	return t, nil
}

// Attach attaches to an already-running process, mirroring
// other_examples' delve proctl.NewDebugProcess: PTRACE_ATTACH, then wait
// for the resulting group-stop.
func Attach(pid int) (*Tracee, error) {
	if err := unix.PtraceAttach(pid); err != nil {
		return nil, fmt.Errorf("%w: PTRACE_ATTACH(%d): %v", ErrKernelTrace, pid, err)
	}

	t := &Tracee{pid: pid}
	if _, err := t.Wait(); err != nil {
		return nil, err
	}

	if err := t.setOptions(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Tracee) setOptions() error {
	opts := unix.PTRACE_O_EXITKILL
	if err := unix.PtraceSetOptions(t.pid, opts); err != nil {
		return fmt.Errorf("%w: PTRACE_SETOPTIONS: %v", ErrKernelTrace, err)
	}
	return nil
}

// Pid returns the traced process id.
func (t *Tracee) Pid() int { return t.pid }

// Detach releases the tracee, letting it run free.
func (t *Tracee) Detach() error {
	if err := unix.PtraceDetach(t.pid); err != nil {
		return fmt.Errorf("%w: PTRACE_DETACH(%d): %v", ErrKernelTrace, t.pid, err)
	}
	return nil
}

// Wait blocks for the next wait(2) status change on the tracee, retrying
// on EINTR the way IreliaTable-gvisor's subprocess.wait() does.
func (t *Tracee) Wait() (Status, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(t.pid, &ws, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return Status{}, fmt.Errorf("%w: wait4(%d): %v", ErrStopStatus, t.pid, err)
		}
		break
	}

	st := newStatus(ws)
	if sig, ok := st.StopSignal(); ok {
		t.lastSig = sig
	}
	return st, nil
}

// GetRegs reads the full register set via PTRACE_GETREGS.
func (t *Tracee) GetRegs() (unix.PtraceRegs, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.pid, &regs); err != nil {
		return regs, fmt.Errorf("%w: PTRACE_GETREGS(%d): %v", ErrKernelTrace, t.pid, err)
	}
	return regs, nil
}

// SetRegs writes the full register set via PTRACE_SETREGS.
func (t *Tracee) SetRegs(regs unix.PtraceRegs) error {
	if err := unix.PtraceSetRegs(t.pid, &regs); err != nil {
		return fmt.Errorf("%w: PTRACE_SETREGS(%d): %v", ErrKernelTrace, t.pid, err)
	}
	return nil
}

// Step issues PTRACE_SINGLESTEP.
func (t *Tracee) Step() error {
	if err := unix.PtraceSingleStep(t.pid); err != nil {
		return fmt.Errorf("%w: PTRACE_SINGLESTEP(%d): %v", ErrKernelTrace, t.pid, err)
	}
	return nil
}

// Cont issues PTRACE_CONT, redelivering whatever signal last stopped the
// tracee unless it was SIGTRAP/SIGSTOP (breakpoint and attach noise the
// tracee never asked to see).
func (t *Tracee) Cont() error {
	sig := t.lastSig
	if sig == unix.SIGTRAP || sig == unix.SIGSTOP {
		sig = 0
	}
	if err := unix.PtraceCont(t.pid, int(sig)); err != nil {
		return fmt.Errorf("%w: PTRACE_CONT(%d): %v", ErrKernelTrace, t.pid, err)
	}
	return nil
}

// PeekWord reads one machine word at addr via PTRACE_PEEKTEXT.
func (t *Tracee) PeekWord(addr Addr) (Word, error) {
	var buf [8]byte
	n, err := unix.PtracePeekData(t.pid, uintptr(addr), buf[:])
	if err != nil {
		return 0, fmt.Errorf("%w: PTRACE_PEEKTEXT(%d,%s): %v", ErrUnmappedAddress, t.pid, addr, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("%w: short peek at %s: got %d bytes", ErrUnmappedAddress, addr, n)
	}
	return Word(leUint64(buf[:])), nil
}

// PokeWord writes one machine word at addr via PTRACE_POKETEXT.
func (t *Tracee) PokeWord(addr Addr, w Word) error {
	var buf [8]byte
	putLeUint64(buf[:], uint64(w))
	n, err := unix.PtracePokeData(t.pid, uintptr(addr), buf[:])
	if err != nil {
		return fmt.Errorf("%w: PTRACE_POKETEXT(%d,%s): %v", ErrUnmappedAddress, t.pid, addr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short poke at %s: wrote %d bytes", ErrUnmappedAddress, addr, n)
	}
	return nil
}

// PeekByte reads a single byte at addr, used by breakpoint installation.
func (t *Tracee) PeekByte(addr Addr) (byte, error) {
	w, err := t.PeekWord(addr)
	if err != nil {
		return 0, err
	}
	return byte(w), nil
}

// PokeByte writes a single byte at addr while preserving the other seven
// bytes of the containing word, matching the read-modify-write ptrace
// text-poke idiom every example in the pack that installs a 0xCC trap
// uses (PTRACE_POKETEXT only ever writes a whole word).
func (t *Tracee) PokeByte(addr Addr, b byte) error {
	w, err := t.PeekWord(addr)
	if err != nil {
		return err
	}
	w = (w &^ 0xFF) | Word(b)
	return t.PokeWord(addr, w)
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLeUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}
