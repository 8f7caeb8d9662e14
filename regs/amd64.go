package regs

import (
	"golang.org/x/sys/unix"

	"github.com/kstephano-forks/rdbgo/tracee"
)

// Registers is the concrete amd64 RegisterFile, mirroring
// original_source/src/registers.rs's x86_64_Registers, itself a mirror of
// the kernel's user_regs_struct. It wraps golang.org/x/sys/unix.PtraceRegs
// directly rather than redeclaring every field, since the field layout
// and names already match what PTRACE_GETREGS/SETREGS expect.
type Registers struct {
	raw unix.PtraceRegs
}

// FromPtraceRegs wraps an already-populated unix.PtraceRegs, as returned
// by Tracee.GetRegs.
func FromPtraceRegs(raw unix.PtraceRegs) *Registers {
	return &Registers{raw: raw}
}

// Raw returns the underlying unix.PtraceRegs, e.g. to pass to
// Tracee.SetRegs.
func (r *Registers) Raw() unix.PtraceRegs { return r.raw }

func (r *Registers) IP() tracee.Addr       { return tracee.Addr(r.raw.Rip) }
func (r *Registers) SetIP(a tracee.Addr)   { r.raw.Rip = uint64(a) }
func (r *Registers) SP() tracee.Addr       { return tracee.Addr(r.raw.Rsp) }
func (r *Registers) SetSP(a tracee.Addr)   { r.raw.Rsp = uint64(a) }
func (r *Registers) BP() tracee.Addr       { return tracee.Addr(r.raw.Rbp) }
func (r *Registers) SetBP(a tracee.Addr)   { r.raw.Rbp = uint64(a) }

func (r *Registers) StackOffset(offset int64) tracee.Addr {
	return tracee.Addr(int64(r.raw.Rsp) + offset)
}

// ReturnAddress reads the saved return address at bp+0x8, following
// original_source/src/process.rs's retn(): a standard prologue ("push
// rbp; mov rbp, rsp") leaves the caller's return address one word above
// the saved frame pointer.
func (r *Registers) ReturnAddress(t *tracee.Tracee) (tracee.Addr, error) {
	w, err := t.PeekWord(r.BP() + 0x8)
	if err != nil {
		return 0, err
	}
	return tracee.Addr(w), nil
}

// Mask copies the receiver's current ip/sp/bp onto a clone of user,
// leaving every other register of user untouched. Ported from
// original_source/src/registers.rs's mask(): it exists so
// Tracee.setregs_user-equivalent code can write caller-supplied argument
// registers without being able to smuggle in a different ip/sp/bp than
// the ones the tracee is actually sitting at.
func (r *Registers) Mask(user File) File {
	u, ok := user.(*Registers)
	if !ok {
		// Cross-ISA masking is not meaningful; copy through as-is.
		return user.Clone()
	}
	out := &Registers{raw: u.raw}
	out.raw.Rip = r.raw.Rip
	out.raw.Rsp = r.raw.Rsp
	out.raw.Rbp = r.raw.Rbp
	return out
}

// ApplyTo writes the wrapped register set to t via PTRACE_SETREGS.
func (r *Registers) ApplyTo(t *tracee.Tracee) error {
	return t.SetRegs(r.raw)
}

func (r *Registers) Clone() File {
	cp := *r
	return &cp
}

func (r *Registers) setArg0(v uint64) { r.raw.Rdi = v }
func (r *Registers) setArg1(v uint64) { r.raw.Rsi = v }
func (r *Registers) setArg2(v uint64) { r.raw.Rdx = v }
func (r *Registers) setArg3(v uint64) { r.raw.Rcx = v }
func (r *Registers) setArg4(v uint64) { r.raw.R8 = v }
func (r *Registers) setArg5(v uint64) { r.raw.R9 = v }
