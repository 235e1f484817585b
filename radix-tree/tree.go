package radix

import (
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/mitake/sto/stm"
)

// Tree implements a concurrent radix tree with unsigned integer keys and
// single-word versioned leaves. Every level consumes one 4-bit group of the
// key, most-significant first, so tree order equals numeric key order.
//
// Two interfaces are exposed. Get, Put and Remove mutate leaves directly
// under their locks and are safe for concurrent use. TransGet, TransPut and
// TransRemove stage reads and writes in an stm.Transaction; the Tree
// implements stm.Shared, and the staged operations take effect when the
// transaction commits.
//
// Interior nodes and leaves are never freed while the tree lives. A removed
// key keeps its leaf with the valid bit cleared, and re-inserting the key
// reuses the same leaf.
//
// The zero-value Tree is ready to use. A Tree must not be copied after
// first use.
type Tree[K constraints.Unsigned, V any] struct {
	// Transformer maps keys to nibble sequences. If nil, UintTransformer
	// is used.
	Transformer KeyTransformer[K]

	root treeNode
}

func (t *Tree[K, V]) nibbles(key K) []uint8 {
	tr := t.Transformer
	if tr == nil {
		tr = UintTransformer[K]{}
	}
	buf := make([]uint8, tr.BufSize())
	tr.Transform(key, buf)
	return buf
}

// descend walks the nibble path. It returns the leaf if the full path
// exists, else nil and the interior node whose empty slot stopped the
// descent. That node's version is the caller's phantom witness.
func (t *Tree[K, V]) descend(buf []uint8) (*VersionedValue[V], *treeNode) {
	n := &t.root
	last := len(buf) - 1
	for i, nib := range buf {
		p := n.child(nib)
		if p == nil {
			return nil, n
		}
		if i == last {
			return (*VersionedValue[V])(p), nil
		}
		n = (*treeNode)(p)
	}
	return nil, &t.root
}

// ensureLeaf walks the nibble path, growing the tree where slots are empty.
// New children are built off-tree and installed under the parent's lock;
// losing a publication race discards the stillborn child and continues
// through the winner. The parent version is bumped before the pointer is
// published, even when the child is a leaf still in its insert-only state,
// so that readers holding the old version as an absence witness fail
// validation.
func (t *Tree[K, V]) ensureLeaf(buf []uint8) *VersionedValue[V] {
	n := &t.root
	last := len(buf) - 1
	for i, nib := range buf {
		p := n.child(nib)
		if p == nil {
			var fresh unsafe.Pointer
			if i == last {
				fresh = unsafe.Pointer(newVersionedValue[V]())
			} else {
				fresh = unsafe.Pointer(&treeNode{})
			}

			stm.Lock(&n.version)
			if p = n.child(nib); p == nil {
				stm.SetVersion(&n.version, n.version.Load()+stm.Increment)
				n.setChild(nib, fresh)
				p = fresh
			}
			stm.Unlock(&n.version)
		}
		if i == last {
			return (*VersionedValue[V])(p)
		}
		n = (*treeNode)(p)
	}
	return nil
}

// Get returns the value stored for key. The read takes no locks; it retries
// until the leaf's version is stable across the value read.
func (t *Tree[K, V]) Get(key K) (V, bool) {
	var zero V
	vv, _ := t.descend(t.nibbles(key))
	if vv == nil {
		return zero, false
	}
	v, ver := vv.snapshot()
	if !stm.Valid(ver) {
		return zero, false
	}
	return v, true
}

// Put stores value for key, creating the path to its leaf if necessary.
func (t *Tree[K, V]) Put(key K, value V) {
	vv := t.ensureLeaf(t.nibbles(key))

	stm.Lock(&vv.version)
	vv.setValue(value)
	ver := vv.version.Load() + stm.Increment
	ver |= stm.ValidBit
	ver &^= insertBit
	stm.SetVersion(&vv.version, ver)
	stm.Unlock(&vv.version)
}

// Remove makes key absent. The leaf and the path to it stay allocated; only
// the valid bit is cleared. Removing an absent key is a no-op.
func (t *Tree[K, V]) Remove(key K) {
	vv, _ := t.descend(t.nibbles(key))
	if vv == nil {
		return
	}

	stm.Lock(&vv.version)
	ver := vv.version.Load() + stm.Increment
	ver &^= stm.ValidBit | insertBit
	stm.SetVersion(&vv.version, ver)
	stm.Unlock(&vv.version)
}
