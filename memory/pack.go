package memory

import "fmt"

// Width selects the output size of Pack, mirroring spec.md §4.2's width
// options and original_source/src/memory.rs's QuerySize.
type Width struct {
	kind  widthKind
	exact int
}

type widthKind int

const (
	widthDefault widthKind = iota // the packed value's own natural length
	widthExact
	widthHalf   // 1 byte
	widthWord   // 2 bytes
	widthDouble // 4 bytes
	widthQuad   // 8 bytes
)

var (
	Default = Width{kind: widthDefault}
	Half    = Width{kind: widthHalf}
	WordW   = Width{kind: widthWord}
	Double  = Width{kind: widthDouble}
	Quad    = Width{kind: widthQuad}
)

// Exact requests a specific byte count.
func Exact(n int) Width { return Width{kind: widthExact, exact: n} }

func (w Width) size(natural int) int {
	switch w.kind {
	case widthExact:
		return w.exact
	case widthHalf:
		return 1
	case widthWord:
		return 2
	case widthDouble:
		return 4
	case widthQuad:
		return 8
	default:
		return natural
	}
}

// ByteOrder selects endianness for Pack.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// PackString packs s to width, zero-prefixing if s is shorter than the
// target width or right-truncating if longer, matching
// original_source/src/memory.rs's MemoryPack impl for String/&str.
func PackString(s string, w Width) []byte {
	target := w.size(len(s))
	b := []byte(s)

	switch {
	case target > len(b):
		pad := make([]byte, target-len(b))
		return append(pad, b...)
	case target < len(b):
		return append([]byte(nil), b[:target]...)
	default:
		return b
	}
}

// PackUint packs an unsigned integer value using natural bytes, then
// zero-extends (if target is wider) or truncates from the high end (if
// target is narrower), then reverses the whole buffer for BigEndian.
// Ported from original_source/src/memory.rs's impl_transmute_pack! macro.
func PackUint(v uint64, natural int, w Width, order ByteOrder) []byte {
	b := make([]byte, natural)
	for i := 0; i < natural; i++ {
		b[i] = byte(v)
		v >>= 8
	}

	target := w.size(natural)
	switch {
	case target > len(b):
		b = append(b, make([]byte, target-len(b))...)
	case target < len(b):
		b = b[:target]
	}

	if order == BigEndian {
		reverse(b)
	}

	return b
}

// Pack dispatches to the typed Pack* helper matching value's concrete
// type, the single entry point spec.md's pack() helper describes.
// Unsigned types zero-extend or truncate via PackUint directly; signed
// types reinterpret their bit pattern as unsigned first; strings use
// PackString. Ported from original_source/src/memory.rs's
// impl_transmute_pack! macro, which generates one MemoryPack impl per
// primitive type and dispatches on the caller's static type the same
// way this switch dispatches on value's dynamic type.
func Pack(value any, w Width, order ByteOrder) []byte {
	switch v := value.(type) {
	case string:
		return PackString(v, w)
	case []byte:
		return PackString(string(v), w)
	case int8:
		return PackInt8(v, w, order)
	case int16:
		return PackInt16(v, w, order)
	case int32:
		return PackInt32(v, w, order)
	case int64:
		return PackInt64(v, w, order)
	case int:
		return PackInt64(int64(v), w, order)
	case uint8:
		return PackUint(uint64(v), 1, w, order)
	case uint16:
		return PackUint(uint64(v), 2, w, order)
	case uint32:
		return PackUint(uint64(v), 4, w, order)
	case uint64:
		return PackUint(v, 8, w, order)
	case uint:
		return PackUint(uint64(v), 8, w, order)
	default:
		panic(fmt.Sprintf("memory: Pack: unsupported type %T", value))
	}
}

// PackInt8/16/32/64 are typed convenience wrappers over PackUint for the
// common integer widths spec.md's pack() helper is exercised with.
func PackInt8(v int8, w Width, order ByteOrder) []byte {
	return PackUint(uint64(uint8(v)), 1, w, order)
}
func PackInt16(v int16, w Width, order ByteOrder) []byte {
	return PackUint(uint64(uint16(v)), 2, w, order)
}
func PackInt32(v int32, w Width, order ByteOrder) []byte {
	return PackUint(uint64(uint32(v)), 4, w, order)
}
func PackInt64(v int64, w Width, order ByteOrder) []byte {
	return PackUint(uint64(v), 8, w, order)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
