// Package breakpoint implements software breakpoints over a tracee: the
// install/disarm/arm/restore/resume lifecycle, grounded on
// original_source/src/breakpoint.rs and cross-checked against the
// byte-patch algorithm in other_examples' delve proctl.go (Break/Clear).
package breakpoint

import (
	"fmt"
	"runtime"

	"github.com/kstephano-forks/rdbgo/tracee"
)

const int3 = 0xCC

// Breakpoint is a single software breakpoint installed at one address in
// one tracee.
type Breakpoint struct {
	t         *tracee.Tracee
	addr      tracee.Addr
	name      string
	enabled   bool
	temporary bool
	armed     bool // whether the 0xCC byte is physically installed right now
	original  byte
}

// New installs a breakpoint at addr: it peeks the original byte, pokes
// 0xCC (INT3) in its place, and records the original byte so Restore can
// put it back. Ported from original_source/src/breakpoint.rs's new/trap.
func New(t *tracee.Tracee, addr tracee.Addr, name string) (*Breakpoint, error) {
	original, err := t.PeekByte(addr)
	if err != nil {
		return nil, fmt.Errorf("install breakpoint %q at %s: %w", name, addr, err)
	}

	bp := &Breakpoint{t: t, addr: addr, name: name, original: original}
	if err := bp.trap(); err != nil {
		return nil, err
	}

	// Mirrors the Rust reference's Drop impl: if the owner never calls
	// Close/Restore explicitly and the breakpoint is collected while
	// still enabled, disarm it rather than leaving a stray 0xCC in a
	// process that may outlive the Go-side handle.
	runtime.SetFinalizer(bp, func(b *Breakpoint) {
		if b.armed {
			_ = b.Restore()
		}
	})

	return bp, nil
}

func (bp *Breakpoint) trap() error {
	if err := bp.t.PokeByte(bp.addr, int3); err != nil {
		return fmt.Errorf("arm breakpoint %q at %s: %w", bp.name, bp.addr, err)
	}
	bp.armed = true
	bp.enabled = true
	return nil
}

// Addr returns the breakpoint's address.
func (bp *Breakpoint) Addr() tracee.Addr { return bp.addr }

// Name returns the breakpoint's diagnostic name.
func (bp *Breakpoint) Name() string { return bp.name }

// IsEnabled reports the bookkeeping enabled flag. It is not the same as
// the trap byte being installed: after SetTemporary(true) it reports
// false while the 0xCC byte stays in place.
func (bp *Breakpoint) IsEnabled() bool { return bp.enabled }

// IsTemporary reports whether this breakpoint self-removes after firing
// once (used for phantom-call exit guards).
func (bp *Breakpoint) IsTemporary() bool { return bp.temporary }

// SetTemporary marks the breakpoint as one-shot. Ported from
// original_source/src/breakpoint.rs's temporary(): this only flips the
// bookkeeping enabled flag (so normal dispatch stops treating it as a
// regular breakpoint) and leaves the 0xCC byte physically armed in the
// tracee — a temporary breakpoint still needs to actually trap the next
// time it's hit, it just isn't "enabled" in the Table.Active sense.
func (bp *Breakpoint) SetTemporary(v bool) error {
	if v && bp.enabled {
		bp.enabled = false
	}
	bp.temporary = v
	return nil
}

// Restore pokes the original byte back, rewinds the tracee's IP to addr,
// and marks the breakpoint disarmed. A no-op if the trap byte isn't
// currently installed. Ported from breakpoint.rs's restore().
func (bp *Breakpoint) Restore() error {
	if !bp.armed {
		return nil
	}

	if err := bp.t.PokeByte(bp.addr, bp.original); err != nil {
		return fmt.Errorf("restore breakpoint %q at %s: %w", bp.name, bp.addr, err)
	}

	regs, err := bp.t.GetRegs()
	if err != nil {
		return err
	}
	regs.Rip = uint64(bp.addr)
	if err := bp.t.SetRegs(regs); err != nil {
		return err
	}

	bp.armed = false
	bp.enabled = false
	return nil
}

// Continue implements the four-step resume protocol: restore the
// original byte, rewind IP to addr (done inside Restore); if this
// breakpoint is not temporary, single-step once past the restored
// instruction and wait, then re-arm the trap; finally PTRACE_CONT and
// wait for the next stop. Ported from breakpoint.rs's cont().
func (bp *Breakpoint) Continue() (tracee.Status, error) {
	if err := bp.Restore(); err != nil {
		return tracee.Status{}, err
	}

	if !bp.temporary {
		if err := bp.t.Step(); err != nil {
			return tracee.Status{}, err
		}
		if _, err := bp.t.Wait(); err != nil {
			return tracee.Status{}, err
		}
		if err := bp.trap(); err != nil {
			return tracee.Status{}, err
		}
	}

	if err := bp.t.Cont(); err != nil {
		return tracee.Status{}, err
	}
	return bp.t.Wait()
}

// JumpTo restores the original byte and continues without single
// stepping, for resuming past a trap the tracee will not re-enter the
// same way (original_source/src/breakpoint.rs's jump_to, via
// restore_to+cont).
func (bp *Breakpoint) JumpTo() (tracee.Status, error) {
	if err := bp.Restore(); err != nil {
		return tracee.Status{}, err
	}
	if err := bp.t.Cont(); err != nil {
		return tracee.Status{}, err
	}
	return bp.t.Wait()
}

// PhantomEntry sets IP to addr and continues without restoring or
// stepping first, since entering a synthesized call is not resuming past
// an existing trap. Ported from breakpoint.rs's phantom_call.
func (bp *Breakpoint) PhantomEntry(addr tracee.Addr) (tracee.Status, error) {
	regs, err := bp.t.GetRegs()
	if err != nil {
		return tracee.Status{}, err
	}
	regs.Rip = uint64(addr)
	if err := bp.t.SetRegs(regs); err != nil {
		return tracee.Status{}, err
	}
	if err := bp.t.Cont(); err != nil {
		return tracee.Status{}, err
	}
	return bp.t.Wait()
}

// Close deterministically disarms the breakpoint if still armed and
// detaches the finalizer, so a later GC pass does not disarm it a second
// time (which would be harmless against a 0xCC that's already gone, but
// pointless).
func (bp *Breakpoint) Close() error {
	var err error
	if bp.armed {
		err = bp.Restore()
	}
	runtime.SetFinalizer(bp, nil)
	return err
}
