package radix

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

const (
	// span is the number of key bits consumed per tree level.
	span = 4
	// fanout is the child count of every interior node.
	fanout = 1 << span
)

// A KeyTransformer maps a key to a fixed-length sequence of nibbles, each in
// [0, fanout), one per tree level. The mapping must be order-preserving: for
// any keys a < b, the nibble sequence of a compares lexicographically less
// than that of b. Only fixed-width keys are supported.
type KeyTransformer[K any] interface {
	// BufSize returns the nibble count, fixed for all keys.
	BufSize() int

	// Transform writes the nibbles of key into buf, which has BufSize
	// elements.
	Transform(key K, buf []uint8)
}

// UintTransformer transforms unsigned integer keys by emitting their 4-bit
// groups most-significant first, so lexicographic nibble order equals
// numeric key order. For uint64 keys this yields 16 nibbles.
type UintTransformer[K constraints.Unsigned] struct{}

func (UintTransformer[K]) BufSize() int {
	var zero K
	return int(unsafe.Sizeof(zero)) * 2
}

func (t UintTransformer[K]) Transform(key K, buf []uint8) {
	n := t.BufSize()
	for i := 0; i < n; i++ {
		buf[n-i-1] = uint8(key>>(span*i)) & (fanout - 1)
	}
}
