package radix

import (
	"sync/atomic"
	"unsafe"
)

// treeNode is an interior node: a fixed array of child slots and a version
// word. A slot holds a *treeNode, or a *VersionedValue at the deepest level;
// the depth of the descent decides which, so slots are stored untyped.
//
// The version word serves two purposes: its lock bit guards child-slot
// publication, and its value witnesses "key absent" observations. A
// transactional reader that misses on an empty slot records this node's
// version; any insert filling a slot bumps the version under the lock, so an
// unchanged version at validation time guarantees no phantom appeared.
//
// A slot transitions at most once, from nil to a child, and the child is
// never reparented or freed while the tree lives.
type treeNode struct {
	version  atomic.Uint64
	children [fanout]unsafe.Pointer
}

func (n *treeNode) child(nib uint8) unsafe.Pointer {
	return atomic.LoadPointer(&n.children[nib])
}

// setChild publishes a child pointer. The caller must hold the node lock and
// have bumped the version first.
func (n *treeNode) setChild(nib uint8, p unsafe.Pointer) {
	atomic.StorePointer(&n.children[nib], p)
}
