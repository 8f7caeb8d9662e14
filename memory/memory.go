// Package memory implements MemoryMap: a parsed view of a tracee's
// /proc/<pid>/maps together with read/write access through
// /proc/<pid>/mem. Grounded on original_source/src/memory.rs's Memory
// type; the external vm_info crate it uses for region discovery has no
// retrieved Go equivalent, so region parsing here is a hand-rolled
// /proc/<pid>/maps scanner (see DESIGN.md).
package memory

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kstephano-forks/rdbgo/tracee"
)

// Permissions mirrors the four-character rwxp/rwxs field of a
// /proc/<pid>/maps line.
type Permissions struct {
	Read, Write, Execute, Shared, Private bool
}

// Region is one contiguous [Start,End) mapping.
type Region struct {
	Start, End  tracee.Addr
	Permissions Permissions
	Pathname    string
}

func (r Region) contains(addr tracee.Addr) bool {
	return addr >= r.Start && addr < r.End
}

// Match is one occurrence of a search needle.
type Match struct {
	Region  Region
	Offset  int // byte offset into the matched region
	Address tracee.Addr
}

// Map is the parsed, sorted set of a tracee's memory regions plus an
// open handle on its /proc/<pid>/mem file.
type Map struct {
	regions []Region
	file    *os.File
}

// Load parses /proc/<pid>/maps and opens /proc/<pid>/mem for read/write,
// following original_source/src/memory.rs's Memory::load.
func Load(pid int) (*Map, error) {
	mapsPath := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(mapsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", tracee.ErrIO, mapsPath, err)
	}
	defer f.Close()

	regions, err := parseMaps(f)
	if err != nil {
		return nil, err
	}

	memPath := fmt.Sprintf("/proc/%d/mem", pid)
	mem, err := os.OpenFile(memPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", tracee.ErrIO, memPath, err)
	}

	return &Map{regions: regions, file: mem}, nil
}

// Close releases the underlying /proc/<pid>/mem handle.
func (m *Map) Close() error { return m.file.Close() }

func parseMaps(f *os.File) ([]Region, error) {
	var regions []Region
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		r, err := parseMapsLine(line)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading maps: %v", tracee.ErrParse, err)
	}

	// "no guarantees seen in `man proc`" -- original_source's comment on
	// Memory::load, reproduced here: sort defensively by start address.
	for i := 1; i < len(regions); i++ {
		for j := i; j > 0 && regions[j-1].Start > regions[j].Start; j-- {
			regions[j-1], regions[j] = regions[j], regions[j-1]
		}
	}

	return regions, nil
}

// parseMapsLine parses one "start-end perms offset dev inode pathname"
// line of /proc/<pid>/maps.
func parseMapsLine(line string) (Region, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Region{}, fmt.Errorf("%w: too few fields: %q", tracee.ErrParse, line)
	}

	bounds := strings.SplitN(fields[0], "-", 2)
	if len(bounds) != 2 {
		return Region{}, fmt.Errorf("%w: malformed address range: %q", tracee.ErrParse, fields[0])
	}
	start, err := strconv.ParseUint(bounds[0], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("%w: start address %q: %v", tracee.ErrParse, bounds[0], err)
	}
	end, err := strconv.ParseUint(bounds[1], 16, 64)
	if err != nil {
		return Region{}, fmt.Errorf("%w: end address %q: %v", tracee.ErrParse, bounds[1], err)
	}

	perms := fields[1]
	if len(perms) < 4 {
		return Region{}, fmt.Errorf("%w: malformed permissions %q", tracee.ErrParse, perms)
	}

	pathname := ""
	if len(fields) >= 6 {
		pathname = strings.Join(fields[5:], " ")
	}

	return Region{
		Start: tracee.Addr(start),
		End:   tracee.Addr(end),
		Permissions: Permissions{
			Read:    perms[0] == 'r',
			Write:   perms[1] == 'w',
			Execute: perms[2] == 'x',
			Shared:  perms[3] == 's',
			Private: perms[3] == 'p',
		},
		Pathname: pathname,
	}, nil
}

// Min returns the smallest mapped start address, 0 if the map is empty.
// This is the convention original_source/src/memory.rs actually
// implements (first().start()); see DESIGN.md's "Open Question: Min()
// convention" entry.
func (m *Map) Min() tracee.Addr {
	if len(m.regions) == 0 {
		return 0
	}
	return m.regions[0].Start
}

// Max returns the largest mapped end address, 0 if the map is empty.
func (m *Map) Max() tracee.Addr {
	if len(m.regions) == 0 {
		return 0
	}
	return m.regions[len(m.regions)-1].End
}

// Regions returns the parsed, sorted region list.
func (m *Map) Regions() []Region {
	out := make([]Region, len(m.regions))
	copy(out, m.regions)
	return out
}

func allowedFor(p Permissions, write bool) bool {
	if write {
		return p.Write
	}
	return p.Read
}

// findChunk implements the coalesced-window permission-validation
// algorithm of original_source/src/memory.rs's find_chunk: adjacent
// regions that share the requested permission with no gap between them
// are treated as one contiguous window, so a read or write spanning a
// permission-preserving region boundary is not incorrectly rejected.
func (m *Map) findChunk(addr tracee.Addr, length int, write bool) bool {
	if len(m.regions) == 0 {
		return false
	}

	var start, end tracee.Addr
	haveWindow := false

	check := func(start, end tracee.Addr) bool {
		return addr >= start && addr < end && tracee.Addr(uint64(addr)+uint64(length)) <= end
	}

	for _, r := range m.regions {
		allowed := allowedFor(r.Permissions, write)

		switch {
		case !haveWindow && allowed:
			start, end = r.Start, r.End
			haveWindow = true
		case haveWindow && r.Start == end && allowed:
			end = r.End
		case haveWindow:
			if check(start, end) {
				return true
			}
			if allowed {
				start, end = r.Start, r.End
			} else {
				haveWindow = false
			}
		}
	}

	return haveWindow && check(start, end)
}

// Read reads length bytes at addr, failing with ErrUnmappedAddress if the
// range is not fully covered by readable, contiguous (possibly
// coalesced) regions.
func (m *Map) Read(addr tracee.Addr, length int) ([]byte, error) {
	if !m.findChunk(addr, length, false) {
		return nil, fmt.Errorf("%w: %s (%d bytes)", tracee.ErrUnmappedAddress, addr, length)
	}

	buf := make([]byte, length)
	n, err := m.file.ReadAt(buf, int64(addr))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", tracee.ErrIO, addr, err)
	}
	return buf[:n], nil
}

// Write writes data at addr, failing with ErrUnmappedAddress if the range
// is not fully covered by writable, contiguous (possibly coalesced)
// regions.
func (m *Map) Write(addr tracee.Addr, data []byte) (int, error) {
	if !m.findChunk(addr, len(data), true) {
		return 0, fmt.Errorf("%w: %s (%d bytes)", tracee.ErrUnmappedAddress, addr, len(data))
	}

	n, err := m.file.WriteAt(data, int64(addr))
	if err != nil {
		return n, fmt.Errorf("%w: write %s: %v", tracee.ErrIO, addr, err)
	}
	return n, nil
}

// Search scans every region overlapping [lo,hi) for non-overlapping
// occurrences of needle. Grounded on original_source/src/memory.rs's
// search/get_matches, with one deliberate deviation: the scan cursor
// advances by len(needle) past each match rather than by 1, so matches
// never overlap, matching spec.md's invariant 6 ("all non-overlapping
// occurrences") rather than the Rust reference's literal off-by-one scan
// (see DESIGN.md).
func (m *Map) Search(lo, hi tracee.Addr, needle []byte) ([]Match, error) {
	if len(needle) == 0 {
		return nil, nil
	}

	var matches []Match
	for _, r := range m.regions {
		if !overlaps(r.Start, r.End, lo, hi) {
			continue
		}

		bytes, err := m.Read(r.Start, int(r.End-r.Start))
		if err != nil {
			// Unreadable regions (e.g. no-permission guard pages) are
			// skipped rather than failing the whole search.
			continue
		}

		matches = append(matches, findNonOverlapping(r, bytes, needle)...)
	}

	return matches, nil
}

func overlaps(start, end, lo, hi tracee.Addr) bool {
	return start < hi && end > lo
}

// findNonOverlapping scans bytes for occurrences of needle, advancing the
// cursor by len(needle) past each hit so returned matches never overlap.
func findNonOverlapping(r Region, bytes, needle []byte) []Match {
	var matches []Match
	cursor := 0
	for {
		idx := indexOfBytes(bytes[cursor:], needle)
		if idx < 0 {
			break
		}
		offset := cursor + idx
		matches = append(matches, Match{
			Region:  r,
			Offset:  offset,
			Address: r.Start + tracee.Addr(offset),
		})
		cursor = offset + len(needle)
	}
	return matches
}

// indexOfBytes is a plain linear substring search; needle length is
// typically small (a pointer-sized value or a short string), so no
// specialized string-search algorithm is warranted here.
func indexOfBytes(haystack, needle []byte) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if bytesEqual(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
