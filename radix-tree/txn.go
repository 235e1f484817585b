package radix

import (
	"github.com/mitake/sto/stm"
)

// Item flag bits. flagPut and flagRemove mark the staged write kind.
// flagEmpty marks an item whose key is an interior node recorded as an
// absence witness rather than a leaf.
const (
	flagPut    = stm.UserFlag0 << 0
	flagRemove = stm.UserFlag0 << 1
	flagEmpty  = stm.UserFlag0 << 2
)

// Ensure Tree satisfies the commit callback contract.
var _ = (stm.Shared)((*Tree[uint64, struct{}])(nil))

// TransGet stages a read of key in tx and returns the value it observed.
// Writes staged earlier in the same transaction are visible: a staged put
// returns its value, a staged remove reads as absent. If the key is absent
// from the tree, the miss is witnessed by recording the version of the
// interior node whose empty slot stopped the descent, so a concurrent
// committed insert of the key aborts tx at validation.
//
// A read that observes a version different from one recorded earlier in the
// same transaction cannot validate; tx is aborted and stm.ErrConflict
// returned.
func (t *Tree[K, V]) TransGet(tx *stm.Transaction, key K) (V, bool, error) {
	var zero V
	vv, node := t.descend(t.nibbles(key))
	if vv == nil {
		item := tx.Item(t, node)
		item.AddRead(node.version.Load())
		item.AddFlags(flagEmpty)
		return zero, false, nil
	}

	item := tx.Item(t, vv)
	if item.HasWrite() {
		if item.Flags()&flagRemove != 0 {
			return zero, false, nil
		}
		return item.WriteValue().(V), true, nil
	}

	v, ver := vv.snapshot()
	if item.HasRead() && !stm.SameVersion(item.ReadValue().(uint64), ver) {
		tx.Abort()
		return zero, false, stm.ErrConflict
	}
	item.AddRead(ver)
	return v, stm.Valid(ver), nil
}

// TransPut stages a write of value for key. The path to the leaf is grown
// immediately; the leaf is created with the insert bit set and stays
// invisible to other transactions until this one commits. If tx aborts, the
// structural allocations remain and are reused by later inserts of the key.
func (t *Tree[K, V]) TransPut(tx *stm.Transaction, key K, value V) {
	vv := t.ensureLeaf(t.nibbles(key))
	item := tx.Item(t, vv)
	item.AddWrite(value)
	item.AddFlags(flagPut)
}

// TransRemove stages a removal of key. Removing a key that is absent stages
// a read of the absence witness, exactly like a failed TransGet: the
// transaction commits only if no insert of the key commits first.
func (t *Tree[K, V]) TransRemove(tx *stm.Transaction, key K) {
	vv, node := t.descend(t.nibbles(key))
	if vv == nil {
		item := tx.Item(t, node)
		item.AddRead(node.version.Load())
		item.AddFlags(flagEmpty)
		return
	}

	item := tx.Item(t, vv)
	item.AddWrite(true)
	item.AddFlags(flagRemove)
}

// Lock, Check, Install and Unlock are the stm.Shared callbacks, invoked by
// Transaction.Commit. Lock, Install and Unlock only ever see leaf items;
// flagEmpty items carry no write.

func (t *Tree[K, V]) Lock(item *stm.Item) {
	vv := item.Key().(*VersionedValue[V])
	stm.Lock(&vv.version)
}

func (t *Tree[K, V]) Check(item *stm.Item) bool {
	if item.Flags()&flagEmpty != 0 {
		node := item.Key().(*treeNode)
		return stm.CheckVersion(node.version.Load(), item.ReadValue().(uint64), false)
	}
	// The committing transaction holds the leaf lock iff the item also
	// stages a write.
	vv := item.Key().(*VersionedValue[V])
	return stm.CheckVersion(vv.version.Load(), item.ReadValue().(uint64), item.HasWrite())
}

func (t *Tree[K, V]) Install(item *stm.Item) {
	vv := item.Key().(*VersionedValue[V])
	ver := vv.version.Load() + stm.Increment
	flags := item.Flags()
	if flags&flagPut != 0 {
		ver |= stm.ValidBit
		ver &^= insertBit
		vv.setValue(item.WriteValue().(V))
	} else if flags&flagRemove != 0 {
		ver &^= stm.ValidBit | insertBit
	}
	stm.SetVersion(&vv.version, ver)
}

func (t *Tree[K, V]) Unlock(item *stm.Item) {
	vv := item.Key().(*VersionedValue[V])
	stm.Unlock(&vv.version)
}
