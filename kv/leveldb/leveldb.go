// Copyright 2022 bnb-chain. All Rights Reserved.
//
// Distributed under MIT license.
// See file LICENSE for detail or copy at https://opensource.org/licenses/MIT

// Package leveldb is the production persistent KV environment: one
// goleveldb instance per data directory, named databases multiplexed by
// key prefix, goleveldb snapshots standing in for LMDB-style read
// transactions, and goleveldb batches standing in for write transactions.
package leveldb

import (
	"bytes"
	stdErrors "errors"
	"sync"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
)

const (
	// minCache is the minimum amount of memory in megabytes to allocate to
	// leveldb read and write caching: half goes to the block cache and a
	// quarter to the write buffer.
	minCache = 16

	// minHandles is the minimum number of file handles to allocate to the
	// open database files.
	minHandles = 16
)

var _ kv.Environment = (*Environment)(nil)

// Options configures a new Environment.
type Options struct {
	// MapSizeKB bounds the total size, in kilobytes, the environment's
	// databases may occupy. A write that would exceed the budget fails
	// with kv.ErrMapFull instead of being applied.
	MapSizeKB uint32
	// MaxReaders bounds the number of concurrently open snapshots. Zero
	// means unbounded.
	MaxReaders uint32
	// CacheMB and Handles tune goleveldb's block cache and open file
	// handle budget.
	CacheMB int
	Handles int
}

// Environment is a kv.Environment backed by a single goleveldb instance
// opened against a filesystem directory.
type Environment struct {
	db *leveldb.DB

	mapSizeBytes int64
	used         int64

	maxReaders int64
	readers    int64
}

// Open opens (or creates) the environment at dir.
func Open(dir string, opts Options) (*Environment, error) {
	cache, handles := opts.CacheMB, opts.Handles
	if cache < minCache {
		cache = minCache
	}
	if handles < minHandles {
		handles = minHandles
	}

	ldbOpts := &opt.Options{
		Filter:                 filter.NewBloomFilter(10),
		DisableSeeksCompaction: true,
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
	}

	db, err := leveldb.OpenFile(dir, ldbOpts)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, err
	}

	used, err := db.SizeOf([]util.Range{{Start: nil, Limit: nil}})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Environment{
		db:           db,
		mapSizeBytes: int64(opts.MapSizeKB) * 1024,
		used:         used.Sum(),
		maxReaders:   int64(opts.MaxReaders),
	}, nil
}

// wrapKey multiplexes a named database onto the single goleveldb keyspace.
func wrapKey(db string, key []byte) []byte {
	return bytes.Join([][]byte{[]byte(db), key}, []byte(":"))
}

// unwrapKey reverses wrapKey, returning a copy safe to retain past the
// iterator that produced wrapped.
func unwrapKey(db string, wrapped []byte) []byte {
	prefix := len(db) + 1
	out := make([]byte, len(wrapped)-prefix)
	copy(out, wrapped[prefix:])
	return out
}

func (e *Environment) Snapshot() (kv.Snapshot, error) {
	if e.maxReaders > 0 {
		n := atomic.AddInt64(&e.readers, 1)
		if n > e.maxReaders {
			atomic.AddInt64(&e.readers, -1)
			return nil, kv.ErrTooManyReaders
		}
	}

	snap, err := e.db.GetSnapshot()
	if err != nil {
		if e.maxReaders > 0 {
			atomic.AddInt64(&e.readers, -1)
		}
		return nil, err
	}
	return &snapshot{env: e, snap: snap}, nil
}

func (e *Environment) Update(fn func(kv.Batch) error) error {
	b := &batch{lb: new(leveldb.Batch)}
	if err := fn(b); err != nil {
		return err
	}

	if e.mapSizeBytes > 0 {
		projected := atomic.LoadInt64(&e.used) + int64(b.addedSize) - int64(b.removedSize)
		if projected > e.mapSizeBytes {
			return kv.ErrMapFull
		}
	}

	if err := e.db.Write(b.lb, nil); err != nil {
		return stdErrors.New("leveldb write: " + err.Error())
	}
	atomic.AddInt64(&e.used, int64(b.addedSize)-int64(b.removedSize))
	return nil
}

func (e *Environment) Close() error {
	return e.db.Close()
}

type snapshot struct {
	env  *Environment
	snap *leveldb.Snapshot

	once sync.Once
}

func (s *snapshot) Get(db string, key []byte) ([]byte, bool, error) {
	val, err := s.snap.Get(wrapKey(db, key), nil)
	if err != nil {
		if stdErrors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

var _ kv.OrderedSnapshot = (*snapshot)(nil)

func (s *snapshot) SeekLastLE(db string, lowerBound, upperBound []byte) ([]byte, []byte, bool, error) {
	rng := &util.Range{Start: wrapKey(db, lowerBound)}
	iter := s.snap.NewIterator(rng, nil)
	defer iter.Release()

	target := wrapKey(db, upperBound)
	var found bool
	if iter.Seek(target) {
		if bytes.Equal(iter.Key(), target) {
			found = true
		} else {
			found = iter.Prev()
		}
	} else {
		found = iter.Last()
	}
	if !found {
		return nil, nil, false, iter.Error()
	}

	key := unwrapKey(db, iter.Key())
	val := append([]byte{}, iter.Value()...)
	return key, val, true, iter.Error()
}

func (s *snapshot) Release() {
	s.once.Do(func() {
		s.snap.Release()
		if s.env.maxReaders > 0 {
			atomic.AddInt64(&s.env.readers, -1)
		}
	})
}

type batch struct {
	lb          *leveldb.Batch
	addedSize   int
	removedSize int
}

func (b *batch) Put(db string, key, value []byte) {
	b.lb.Put(wrapKey(db, key), value)
	b.addedSize += len(key) + len(value)
}

func (b *batch) Delete(db string, key []byte) {
	b.lb.Delete(wrapKey(db, key))
	b.removedSize += len(key)
}
