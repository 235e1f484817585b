package stm

import (
	"errors"
	"reflect"
	"sort"
)

var (
	// ErrConflict is returned when commit-time validation fails, or by an
	// operation that observes a version conflicting with an earlier read in
	// the same transaction.
	ErrConflict = errors.New("stm: transaction conflict")

	// ErrAborted is returned by Commit on a transaction that has been
	// aborted.
	ErrAborted = errors.New("stm: transaction aborted")

	// ErrCommitted is returned by Commit on a transaction that already
	// committed. Transactions are single use.
	ErrCommitted = errors.New("stm: transaction already committed")
)

type itemKey struct {
	owner Shared
	key   interface{}
}

// Transaction accumulates per-object items and commits them with two-phase
// optimistic concurrency control. A Transaction is not safe for concurrent
// use; concurrency happens between transactions, not within one.
type Transaction struct {
	// Stats, if set before the transaction is used, receives the outcome.
	Stats Stats

	items map[itemKey]*Item
	order []*Item

	aborted   bool
	committed bool
}

func NewTransaction() *Transaction {
	return &Transaction{
		items: make(map[itemKey]*Item),
	}
}

// Item returns the item recording this transaction's state for (owner, key),
// creating it on first use. Repeated calls with the same pair return the
// same handle.
func (tx *Transaction) Item(owner Shared, key interface{}) *Item {
	ik := itemKey{owner: owner, key: key}
	if it, ok := tx.items[ik]; ok {
		return it
	}
	it := &Item{
		owner: owner,
		key:   key,
		rank:  keyRank(key),
		seq:   len(tx.order),
	}
	tx.items[ik] = it
	tx.order = append(tx.order, it)
	return it
}

// keyRank extracts an address from pointer-shaped keys. Commit locks items
// in rank order so concurrent transactions cannot deadlock on each other.
func keyRank(key interface{}) uintptr {
	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Chan, reflect.Map, reflect.Func:
		return rv.Pointer()
	}
	return 0
}

// Aborted reports whether the transaction has been aborted.
func (tx *Transaction) Aborted() bool {
	return tx.aborted
}

// Abort marks the transaction as unable to commit. Staged writes are
// discarded at commit time; no object state is touched.
func (tx *Transaction) Abort() {
	if tx.aborted || tx.committed {
		return
	}
	tx.aborted = true
	if tx.Stats != nil {
		tx.Stats.RecordAbort()
	}
}

// Commit runs the two-phase protocol: every item with a staged write is
// locked in rank order, every item with a recorded read is validated, then
// all writes are installed and the locks released. On a failed validation
// no write is installed and ErrConflict is returned.
func (tx *Transaction) Commit() error {
	if tx.committed {
		return ErrCommitted
	}
	if tx.aborted {
		return ErrAborted
	}

	writes := make([]*Item, 0, len(tx.order))
	for _, it := range tx.order {
		if it.hasWrite {
			writes = append(writes, it)
		}
	}
	sort.Slice(writes, func(i, j int) bool {
		if writes[i].rank != writes[j].rank {
			return writes[i].rank < writes[j].rank
		}
		return writes[i].seq < writes[j].seq
	})

	for _, it := range writes {
		it.owner.Lock(it)
	}

	for _, it := range tx.order {
		if !it.hasRead {
			continue
		}
		if !it.owner.Check(it) {
			for _, w := range writes {
				w.owner.Unlock(w)
			}
			tx.aborted = true
			if tx.Stats != nil {
				tx.Stats.RecordConflict()
				tx.Stats.RecordAbort()
			}
			return ErrConflict
		}
	}

	for _, it := range writes {
		it.owner.Install(it)
	}
	for _, it := range writes {
		it.owner.Unlock(it)
	}

	tx.committed = true
	if tx.Stats != nil {
		tx.Stats.RecordCommit()
	}
	return nil
}
