// Package badgerkv provides a Badger-backed persistent store for tree
// contents. Keys are 8 big-endian bytes, so Badger's iteration order matches
// the tree's numeric key order. The Store doubles as a libkv-compatible
// string-keyed store and as the sink of a writeback.Flusher, and can replay
// its contents into a tree through the raw non-transactional interface.
package badgerkv

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"
	"github.com/docker/libkv/store"
)

const (
	MaxValueLogFileSize = 256 << 20
)

type Store struct {
	db *badger.DB
}

// Ensure Store satisfies libkv's store.Store interface.
var _ = (store.Store)((*Store)(nil))

func NewStore(name string) (*Store, error) {
	opts := badger.DefaultOptions(name)
	opts.Dir = name
	opts.ValueDir = name
	opts.ValueLogFileSize = MaxValueLogFileSize
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (t *Store) DB() *badger.DB {
	return t.db
}

func (t *Store) Close() {
	t.db.Close()
}

func encodeKey(key uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], key)
	return buf[:]
}

// GetUint64 returns the stored value for key, or store.ErrKeyNotFound.
func (t *Store) GetUint64(key uint64) ([]byte, error) {
	var val []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, store.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	return val, nil
}

// PutUint64 stores value under key.
func (t *Store) PutUint64(key uint64, value []byte) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(key), value)
	})
}

// DeleteUint64 removes key. Deleting an absent key is not an error.
func (t *Store) DeleteUint64(key uint64) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(key))
	})
}

// Restore replays every uint64-keyed entry, in ascending key order, into
// apply. Use it to bootstrap a tree from a previous run's writeback output:
//
//	st.Restore(func(k uint64, v []byte) error {
//		tree.Put(k, string(v))
//		return nil
//	})
func (t *Store) Restore(apply func(key uint64, value []byte) error) error {
	return t.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			k := item.Key()
			if len(k) != 8 {
				continue
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := apply(binary.BigEndian.Uint64(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// The string-keyed methods below keep the Store usable wherever a libkv
// store is expected.

func (t *Store) Get(key string) (*store.KVPair, error) {
	var val []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, store.ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	return &store.KVPair{Key: key, Value: val}, nil
}

func (t *Store) Exists(key string) (bool, error) {
	err := t.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Store) Put(key string, value []byte, options *store.WriteOptions) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (t *Store) Delete(key string) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (*Store) AtomicPut(key string, value []byte, previous *store.KVPair, options *store.WriteOptions) (bool, *store.KVPair, error) {
	return false, nil, store.ErrCallNotSupported
}

func (*Store) AtomicDelete(key string, previous *store.KVPair) (bool, error) {
	return false, store.ErrCallNotSupported
}

func (*Store) Watch(key string, stopCh <-chan struct{}) (<-chan *store.KVPair, error) {
	return nil, store.ErrCallNotSupported
}

func (*Store) WatchTree(directory string, stopCh <-chan struct{}) (<-chan []*store.KVPair, error) {
	return nil, store.ErrCallNotSupported
}

func (*Store) NewLock(key string, options *store.LockOptions) (store.Locker, error) {
	return nil, store.ErrCallNotSupported
}

func (*Store) List(directory string) ([]*store.KVPair, error) {
	return nil, store.ErrCallNotSupported
}

func (*Store) DeleteTree(directory string) error {
	return store.ErrCallNotSupported
}
