package radix

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/mitake/sto/stm"
)

func TestTreeRoundTrip(t *testing.T) {
	var tree Tree[uint64, uint64]
	keys := []uint64{0, 1, 0xFF00, 0xFF10, 1 << 63, ^uint64(0)}
	for _, k := range keys {
		tree.Put(k, k+1)
	}

	for _, k := range keys {
		v, ok := tree.Get(k)
		if !ok {
			t.Errorf("Get(%016x) not found", k)
		} else if v != k+1 {
			t.Errorf("Get(%016x) = %d, want %d", k, v, k+1)
		}
	}

	if _, ok := tree.Get(2); ok {
		t.Error("Get(2) found, want absent")
	}
}

func TestTreeOverwrite(t *testing.T) {
	var tree Tree[uint64, string]
	tree.Put(42, "a")
	tree.Put(42, "b")
	v, ok := tree.Get(42)
	if !ok || v != "b" {
		t.Errorf("Get(42) = (%q, %v), want (\"b\", true)", v, ok)
	}
}

func TestTreeRemove(t *testing.T) {
	var tree Tree[uint64, int]
	tree.Put(7, 1)
	tree.Remove(7)
	if _, ok := tree.Get(7); ok {
		t.Error("Get(7) found after Remove")
	}

	// Removes are idempotent, including of keys never inserted.
	tree.Remove(7)
	tree.Remove(8)
	if _, ok := tree.Get(7); ok {
		t.Error("Get(7) found after second Remove")
	}
}

func TestTreeRemoveReinsertReusesLeaf(t *testing.T) {
	var tree Tree[uint64, int]
	tree.Put(7, 1)
	first, _ := tree.descend(tree.nibbles(7))
	if first == nil {
		t.Fatal("no leaf after Put")
	}

	tree.Remove(7)
	if _, ok := tree.Get(7); ok {
		t.Error("Get(7) found after Remove")
	}

	tree.Put(7, 2)
	second, _ := tree.descend(tree.nibbles(7))
	if second != first {
		t.Error("re-insert allocated a new leaf")
	}
	v, ok := tree.Get(7)
	if !ok || v != 2 {
		t.Errorf("Get(7) = (%d, %v), want (2, true)", v, ok)
	}
}

func TestTreeDenseKeys(t *testing.T) {
	var tree Tree[uint64, uint64]
	for i := uint64(0); i < 512; i++ {
		tree.Put(i, i)
	}
	for i := uint64(0); i < 512; i++ {
		v, ok := tree.Get(i)
		if !ok || v != i {
			t.Fatalf("Get(%d) = (%d, %v)", i, v, ok)
		}
	}
}

func TestTreeSmallKeyWidth(t *testing.T) {
	var tree Tree[uint16, string]
	tree.Put(0x00FF, "low")
	tree.Put(0xFF00, "high")
	if v, ok := tree.Get(0x00FF); !ok || v != "low" {
		t.Errorf("Get(0x00FF) = (%q, %v)", v, ok)
	}
	if v, ok := tree.Get(0xFF00); !ok || v != "high" {
		t.Errorf("Get(0xFF00) = (%q, %v)", v, ok)
	}
}

func TestLeafStateBits(t *testing.T) {
	var tree Tree[uint64, int]

	// A leaf grown by a transactional put that never commits stays in the
	// insert-only state.
	tx := stm.NewTransaction()
	tree.TransPut(tx, 9, 1)
	vv, _ := tree.descend(tree.nibbles(9))
	if vv == nil {
		t.Fatal("no leaf after TransPut")
	}
	ver := vv.Version()
	if ver&insertBit == 0 || stm.Valid(ver) {
		t.Errorf("fresh leaf version %x, want insert set and valid clear", ver)
	}

	tree.Put(9, 1)
	ver = vv.Version()
	if ver&insertBit != 0 || !stm.Valid(ver) {
		t.Errorf("present leaf version %x, want valid set and insert clear", ver)
	}

	tree.Remove(9)
	ver = vv.Version()
	if ver&insertBit != 0 || stm.Valid(ver) {
		t.Errorf("removed leaf version %x, want valid and insert clear", ver)
	}
}

func TestTreeStructure(t *testing.T) {
	var tree Tree[uint64, int]
	n := 1000
	for i := 0; i < n; i++ {
		tree.Put(rand.Uint64(), i)
	}
	depth := (UintTransformer[uint64]{}).BufSize()
	checkNodeDepth(t, &tree.root, 0, depth)
}

// checkNodeDepth walks the interior nodes down to the deepest level. Slots
// above that level are followed as interior nodes; slots at the deepest
// level are taken to be leaves and not followed. The walk does not inspect
// what a slot points to.
func checkNodeDepth(t *testing.T, n *treeNode, depth, max int) {
	t.Helper()
	if depth >= max {
		t.Fatalf("interior node at depth %d", depth)
	}
	for i := uint8(0); i < fanout; i++ {
		p := n.child(i)
		if p == nil {
			continue
		}
		if depth == max-1 {
			continue // leaf level, nothing below to walk
		}
		checkNodeDepth(t, (*treeNode)(p), depth+1, max)
	}
}

func BenchmarkTreePut(b *testing.B) {
	var tree Tree[uint64, uint64]
	for i := 0; i < b.N; i++ {
		tree.Put(uint64(i), uint64(i))
	}
}

func BenchmarkTreeGet(b *testing.B) {
	var tree Tree[uint64, uint64]
	for i := 0; i < 1<<16; i++ {
		tree.Put(uint64(i), uint64(i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Get(uint64(i) & 0xFFFF)
	}
}

func ExampleTree() {
	var tree Tree[uint64, string]
	tree.Put(1, "one")
	v, ok := tree.Get(1)
	fmt.Println(v, ok)
	// Output: one true
}
