package breakpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableKeyedAtAddrPlusOne(t *testing.T) {
	tbl := NewTable()
	bp := &Breakpoint{addr: 0x4005d0, name: "fake", enabled: true}
	tbl.Insert(bp)

	_, foundAtBareAddr := tbl.Lookup(0x4005d0)
	require.False(t, foundAtBareAddr, "lookup at the bare breakpoint address must miss")

	found, ok := tbl.Lookup(0x4005d1)
	require.True(t, ok, "lookup at addr+1 (the post-trap IP) must hit")
	require.Same(t, bp, found)
}

func TestTableActiveIgnoresDisabledNonTemporary(t *testing.T) {
	tbl := NewTable()
	bp := &Breakpoint{addr: 0x4006ce, name: "disabled", enabled: false, temporary: false}
	tbl.Insert(bp)

	require.Nil(t, tbl.Active(0x4006cf), "a disabled, non-temporary breakpoint must not be reported active")
}

func TestTableActiveAllowsTemporaryEvenIfDisabled(t *testing.T) {
	tbl := NewTable()
	bp := &Breakpoint{addr: 0x4005fa, name: "tmp", enabled: false, temporary: true}
	tbl.Insert(bp)

	require.Same(t, bp, tbl.Active(0x4005fb))
}

func TestTableDeleteByAddr(t *testing.T) {
	tbl := NewTable()
	bp := &Breakpoint{addr: 0x400592, name: "x", enabled: true}
	tbl.Insert(bp)
	tbl.Delete(0x400592)

	_, ok := tbl.LookupByAddr(0x400592)
	require.False(t, ok)
}

func TestSetTemporaryClearsEnabledWithoutTouchingTracee(t *testing.T) {
	// SetTemporary must only flip bookkeeping, never call Restore (which
	// would dereference bp.t against a real tracee and physically remove
	// the still-needed trap byte) — a nil t here would panic if it did.
	bp := &Breakpoint{addr: 0x4005a6, name: "will-become-temp", enabled: true, armed: true, t: nil}
	require.NoError(t, bp.SetTemporary(true))
	require.True(t, bp.IsTemporary())
	require.False(t, bp.IsEnabled())
	require.True(t, bp.armed, "the 0xCC byte must stay physically installed")
}

func TestTableActiveStillMatchesAfterSetTemporary(t *testing.T) {
	tbl := NewTable()
	bp := &Breakpoint{addr: 0x4005fa, name: "tmp", enabled: true, armed: true}
	tbl.Insert(bp)
	require.NoError(t, bp.SetTemporary(true))

	require.Same(t, bp, tbl.Active(0x4005fb), "a temporary breakpoint must still report active even though enabled flipped false")
}
