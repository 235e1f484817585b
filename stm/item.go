package stm

// UserFlag0 is the first of the flag bits available to owning objects. An
// owner may shift it to derive further flags; at least three are available.
const UserFlag0 uint64 = 1 << 0

// Item records one transaction's interaction with a single (owner, key)
// pair: the version it read, the value it intends to write, and owner-defined
// flag bits. Items are created through Transaction.Item and are not safe for
// concurrent use.
type Item struct {
	owner Shared
	key   interface{}
	rank  uintptr
	seq   int

	flags uint64

	read     interface{}
	hasRead  bool
	write    interface{}
	hasWrite bool
}

// Key returns the key the item was created with. The owner casts it back to
// its concrete type.
func (it *Item) Key() interface{} {
	return it.key
}

func (it *Item) Flags() uint64 {
	return it.flags
}

// AddFlags sets the given flag bits, in addition to any already set.
func (it *Item) AddFlags(mask uint64) {
	it.flags |= mask
}

func (it *Item) HasRead() bool {
	return it.hasRead
}

func (it *Item) HasWrite() bool {
	return it.hasWrite
}

// AddRead records v as the version observed by this transaction. A second
// call replaces the previous record; callers validate equality first if the
// older observation must still hold.
func (it *Item) AddRead(v interface{}) {
	it.read = v
	it.hasRead = true
}

// AddWrite stages v as the value to install at commit.
func (it *Item) AddWrite(v interface{}) {
	it.write = v
	it.hasWrite = true
}

// ReadValue returns the recorded read. Only meaningful if HasRead.
func (it *Item) ReadValue() interface{} {
	return it.read
}

// WriteValue returns the staged write. Only meaningful if HasWrite.
func (it *Item) WriteValue() interface{} {
	return it.write
}
