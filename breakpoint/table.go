package breakpoint

import "github.com/kstephano-forks/rdbgo/tracee"

// Table is a breakpoint lookup table keyed by post-trap instruction
// pointer, i.e. addr+1, never by the bare breakpoint address. This is
// the single disambiguated convention spec.md §9 mandates: when the CPU
// executes the one-byte 0xCC trap, the IP it reports afterward is
// addr+1, so every insertion and lookup in this table uses that same
// addr+1 key throughout, matching
// original_source/src/debugger.rs's breakpoints map and deliberately not
// the bare-addr convention of original_source/src/manager.rs (an earlier,
// rejected draft) or of other_examples' delve proctl.go's Break/Clear.
type Table struct {
	byPostTrapIP map[tracee.Addr]*Breakpoint
}

// NewTable returns an empty breakpoint table.
func NewTable() *Table {
	return &Table{byPostTrapIP: make(map[tracee.Addr]*Breakpoint)}
}

func postTrapKey(addr tracee.Addr) tracee.Addr { return addr + 1 }

// Insert adds bp to the table, keyed at bp.Addr()+1.
func (tbl *Table) Insert(bp *Breakpoint) {
	tbl.byPostTrapIP[postTrapKey(bp.Addr())] = bp
}

// Lookup finds the breakpoint, if any, whose trap the tracee just hit,
// given the current (post-trap) instruction pointer.
func (tbl *Table) Lookup(postTrapIP tracee.Addr) (*Breakpoint, bool) {
	bp, ok := tbl.byPostTrapIP[postTrapIP]
	return bp, ok
}

// LookupByAddr finds the breakpoint installed at addr (its pre-trap
// address), for callers that have the install address rather than a
// post-trap IP.
func (tbl *Table) LookupByAddr(addr tracee.Addr) (*Breakpoint, bool) {
	return tbl.Lookup(postTrapKey(addr))
}

// Delete removes the breakpoint installed at addr.
func (tbl *Table) Delete(addr tracee.Addr) {
	delete(tbl.byPostTrapIP, postTrapKey(addr))
}

// Active returns the enabled-or-temporary breakpoint matching the given
// post-trap IP, or nil if none is active there. A breakpoint that exists
// in the table but is neither enabled nor temporary is treated as absent,
// matching original_source/src/debugger.rs's breakpoint_at, which only
// matches "is_enabled() || is_temporary()".
func (tbl *Table) Active(postTrapIP tracee.Addr) *Breakpoint {
	bp, ok := tbl.Lookup(postTrapIP)
	if !ok {
		return nil
	}
	if bp.IsEnabled() || bp.IsTemporary() {
		return bp
	}
	return nil
}

// Len returns the number of installed breakpoints.
func (tbl *Table) Len() int { return len(tbl.byPostTrapIP) }
