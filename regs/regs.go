// Package regs defines RegisterFile, the ISA-parameterized capability set
// spec.md §4.1 describes: an abstraction over a tracee's register file
// that exposes exactly the fields the rest of the library needs (ip, sp,
// bp, a "mask user-supplied registers back onto the current control
// registers" operation, and calling-convention argument marshalling),
// without forcing every caller to know the concrete amd64 user_regs_struct
// layout. Grounded on original_source/src/registers.rs's Register trait
// and on other_examples' delve proctl.Registers interface, which takes
// the same "capability set as an interface" shape in idiomatic Go.
package regs

import (
	"errors"

	"github.com/kstephano-forks/rdbgo/tracee"
)

var errUnsupportedISA = errors.New("regs: File implementation does not support argument marshalling")

// File is a capability set over one tracee's register file. Concrete
// implementations exist per-ISA; amd64.Registers is the only one this
// library ships, matching spec.md's x86-64-only scope.
type File interface {
	IP() tracee.Addr
	SetIP(tracee.Addr)
	SP() tracee.Addr
	SetSP(tracee.Addr)
	BP() tracee.Addr
	SetBP(tracee.Addr)

	// ReturnAddress reads the word at BP()+0x8, the conventional saved
	// return address slot one word above a standard frame pointer,
	// following original_source/src/process.rs's retn().
	ReturnAddress(t *tracee.Tracee) (tracee.Addr, error)

	// StackOffset returns the address offset bytes above (or, for a
	// negative offset, below) the current stack pointer.
	StackOffset(offset int64) tracee.Addr

	// Mask returns a copy of user with its control registers (ip, sp, bp)
	// forced to the receiver's current values. Ported from
	// original_source/src/registers.rs's mask(): callers write
	// user-supplied argument registers without being able to accidentally
	// smuggle in a new ip/sp/bp.
	Mask(user File) File

	// Clone returns an independent copy of the register file.
	Clone() File

	// ApplyTo writes this register file to the tracee via PTRACE_SETREGS.
	// Kept on the interface (rather than exposing a raw struct) so
	// callers outside this package never need to know the concrete ISA
	// type to push a register file they were handed back.
	ApplyTo(t *tracee.Tracee) error
}

// MarshalArgs applies the System-V x86-64 integer calling convention:
// the first six arguments go into rdi, rsi, rdx, rcx, r8, r9; any
// remaining arguments are pushed onto the tracee's stack. Grounded on
// original_source/src/registers.rs's x86_64_Registers::from_process,
// which marshals into the same six registers and then iterates
// args[6:] through repeated stack pushes.
//
// The returned File is a fresh copy of base with the argument registers
// applied; base itself is left untouched. Extra arguments (beyond six)
// are pushed directly into the tracee's memory via t, since a stack push
// is an observable memory side effect, not just a register change.
func MarshalArgs(t *tracee.Tracee, base File, args []uint64) (File, error) {
	out := base.Clone()

	setter, ok := out.(argSetter)
	if !ok {
		return nil, errUnsupportedISA
	}

	regSlots := []func(uint64){
		setter.setArg0, setter.setArg1, setter.setArg2,
		setter.setArg3, setter.setArg4, setter.setArg5,
	}

	n := len(args)
	if n > 6 {
		n = 6
	}
	for i := 0; i < n; i++ {
		regSlots[i](args[i])
	}

	// Remaining args are pushed right-to-left: the last extra argument is
	// pushed first so that, after all pushes, the lowest stack address
	// (the new top of stack) holds the first extra argument, which is
	// what a callee expects when it walks its stack arguments in order.
	for i := len(args) - 1; i >= 6; i-- {
		sp := out.SP() - tracee.Addr(wordSize)
		if err := t.PokeWord(sp, tracee.Word(args[i])); err != nil {
			return nil, err
		}
		out.SetSP(sp)
	}

	return out, nil
}

const wordSize = 8

// argSetter is implemented by amd64.Registers to let MarshalArgs assign
// into the six argument-passing registers without a type switch; it is
// unexported so only this package's MarshalArgs can reach it via the
// setArgN accessors declared on the File values returned by Clone().
type argSetter interface {
	setArg0(uint64)
	setArg1(uint64)
	setArg2(uint64)
	setArg3(uint64)
	setArg4(uint64)
	setArg5(uint64)
}
