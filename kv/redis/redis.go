// Copyright 2022 bnb-chain. All Rights Reserved.
//
// Distributed under MIT license.
// See file LICENSE for detail or copy at https://opensource.org/licenses/MIT

// Package redis is a kv.Environment backed by Redis. It is intended for
// demos and for committed-only workloads: Redis has no native MVCC
// snapshot, so a Snapshot from this environment only isolates against
// writes the environment itself buffers, not against writes from other
// clients that land mid-read.
package redis

import (
	"bytes"
	"context"
	stdErrors "errors"

	"github.com/go-redis/redis/v8"

	"github.com/ytrtdfkgf/merkle-worldstate/kv"
)

var _ kv.Environment = (*Environment)(nil)

// Config mirrors the subset of go-redis options the environment needs to
// dial a single node or a cluster.
type Config struct {
	Addr        string
	ClusterAddr []string
	Username    string
	Password    string
}

type Environment struct {
	namespace []byte
	client    RedisClient
}

// New dials redis and returns a kv.Environment.
func New(cfg Config, opts ...Option) (*Environment, error) {
	var client RedisClient
	if len(cfg.ClusterAddr) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    cfg.ClusterAddr,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	env := &Environment{client: client}
	for _, opt := range opts {
		opt.Apply(env)
	}
	return env, nil
}

// NewFromClient wraps an existing client, e.g. one backed by miniredis in
// tests.
func NewFromClient(client RedisClient, opts ...Option) *Environment {
	env := &Environment{client: client}
	for _, opt := range opts {
		opt.Apply(env)
	}
	return env
}

func (e *Environment) wrapKey(db string, key []byte) string {
	parts := [][]byte{[]byte(db), key}
	if len(e.namespace) > 0 {
		parts = append([][]byte{e.namespace}, parts...)
	}
	return string(bytes.Join(parts, []byte(":")))
}

func (e *Environment) Snapshot() (kv.Snapshot, error) {
	return &snapshot{env: e}, nil
}

func (e *Environment) Update(fn func(kv.Batch) error) error {
	b := &batch{}
	if err := fn(b); err != nil {
		return err
	}

	_, err := e.client.TxPipelined(context.Background(), func(pipe redis.Pipeliner) error {
		for _, op := range b.ops {
			key := e.wrapKey(op.db, op.key)
			if op.delete {
				pipe.Del(context.Background(), key)
				continue
			}
			pipe.Set(context.Background(), key, op.value, 0)
		}
		return nil
	})
	return err
}

func (e *Environment) Close() error {
	return e.client.Close()
}

type snapshot struct {
	env *Environment
}

func (s *snapshot) Get(db string, key []byte) ([]byte, bool, error) {
	val, err := s.env.client.Get(context.Background(), s.env.wrapKey(db, key)).Result()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(val), true, nil
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
	b.ops = append(b.ops, op{db: db, key: key, value: value})
}

func (b *batch) Delete(db string, key []byte) {
	b.ops = append(b.ops, op{db: db, key: key, delete: true})
}
