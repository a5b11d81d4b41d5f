// Copyright 2022 bnb-chain. All Rights Reserved.
//
// Distributed under MIT license.
// See file LICENSE for detail or copy at https://opensource.org/licenses/MIT

// Package memory is an in-process kv.Environment used by tests and the
// demo binary. Snapshots are plain copies, which is sufficient since
// nothing else can observe a copy mid-mutation.
package memory

import (
	"bytes"
	"sync"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
	"github.com/ytrtdfkgf/merkle-worldstate/utils"
)

var _ kv.Environment = (*Environment)(nil)

// New returns an empty in-memory environment.
func New() *Environment {
	return &Environment{dbs: make(map[string]map[string][]byte)}
}

type Environment struct {
	mu     sync.RWMutex
	dbs    map[string]map[string][]byte
	closed bool
}

func (e *Environment) Snapshot() (kv.Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, kv.ErrClosed
	}

	copied := make(map[string]map[string][]byte, len(e.dbs))
	for db, kvs := range e.dbs {
		inner := make(map[string][]byte, len(kvs))
		for k, v := range kvs {
			inner[k] = utils.CopyBytes(v)
		}
		copied[db] = inner
	}
	return &snapshot{dbs: copied}, nil
}

func (e *Environment) Update(fn func(kv.Batch) error) error {
	b := &batch{}
	if err := fn(b); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return kv.ErrClosed
	}
	for _, op := range b.ops {
		inner := e.dbs[op.db]
		if inner == nil {
			inner = make(map[string][]byte)
			e.dbs[op.db] = inner
		}
		if op.delete {
			delete(inner, string(op.key))
			continue
		}
		inner[string(op.key)] = utils.CopyBytes(op.value)
	}
	return nil
}

func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.dbs = nil
	return nil
}

type snapshot struct {
	dbs map[string]map[string][]byte
}

func (s *snapshot) Get(db string, key []byte) ([]byte, bool, error) {
	inner, ok := s.dbs[db]
	if !ok {
		return nil, false, nil
	}
	v, ok := inner[string(key)]
	return v, ok, nil
}

var _ kv.OrderedSnapshot = (*snapshot)(nil)

// SeekLastLE does a linear scan over db's keys; the in-memory environment
// is a test/demo convenience and never holds enough keys for this to
// matter, unlike the leveldb backend which answers the same query with a
// real iterator seek.
func (s *snapshot) SeekLastLE(db string, lowerBound, upperBound []byte) ([]byte, []byte, bool, error) {
	inner, ok := s.dbs[db]
	if !ok {
		return nil, nil, false, nil
	}

	var bestKey []byte
	var bestVal []byte
	found := false
	for k, v := range inner {
		kb := []byte(k)
		if bytes.Compare(kb, lowerBound) < 0 || bytes.Compare(kb, upperBound) > 0 {
			continue
		}
		if !found || bytes.Compare(kb, bestKey) > 0 {
			bestKey, bestVal, found = kb, v, true
		}
	}
	if !found {
		return nil, nil, false, nil
	}
	return bestKey, utils.CopyBytes(bestVal), true, nil
}

func (s *snapshot) Release() {}

type op struct {
	db     string
	key    []byte
	value  []byte
	delete bool
}

type batch struct {
	ops []op
}

func (b *batch) Put(db string, key, value []byte) {
	b.ops = append(b.ops, op{db: db, key: utils.CopyBytes(key), value: utils.CopyBytes(value)})
}

func (b *batch) Delete(db string, key []byte) {
	b.ops = append(b.ops, op{db: db, key: utils.CopyBytes(key), delete: true})
}

