package radix

import (
	"sync/atomic"

	"github.com/mitake/sto/stm"
)

// insertBit marks a leaf that exists structurally but has not been made
// visible by a committed put. It occupies the version word's user bit.
const insertBit = stm.UserBit1

// VersionedValue is a leaf: a single payload cell paired with a version
// word. The word packs the lock bit, the valid bit (clear means the leaf is
// logically absent), the insert bit, and a timestamp advanced on every
// update. Once allocated, a leaf's address is stable for the life of the
// tree; removal only clears the valid bit.
type VersionedValue[V any] struct {
	version atomic.Uint64
	value   atomic.Pointer[V]
}

func newVersionedValue[V any]() *VersionedValue[V] {
	vv := &VersionedValue[V]{}
	vv.version.Store(insertBit)
	return vv
}

// Version returns the current version word.
func (vv *VersionedValue[V]) Version() uint64 {
	return vv.version.Load()
}

// snapshot returns a coherent (value, version) pair without locking: the
// version is sampled before and after the value read, and the read retries
// until both samples agree and the leaf is unlocked. The returned version is
// the one a transactional reader records; its valid bit decides presence.
func (vv *VersionedValue[V]) snapshot() (V, uint64) {
	for {
		v1 := vv.version.Load()
		p := vv.value.Load()
		v2 := vv.version.Load()
		if v1 == v2 && !stm.Locked(v1) {
			if p == nil {
				var zero V
				return zero, v2
			}
			return *p, v2
		}
	}
}

// setValue stores the payload. The caller must hold the leaf lock; the
// value only becomes observable once the subsequent version store publishes
// it.
func (vv *VersionedValue[V]) setValue(v V) {
	vv.value.Store(&v)
}
