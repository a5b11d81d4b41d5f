// Package pool is the worker pool (C6): a fixed-size pool of goroutines
// that drives tree-internal parallelism (per-level hashing, batch work)
// and backs the async op runner's per-request dispatch.
package pool

import (
	"sync"
	"time"

	ants "github.com/panjf2000/ants/v2"
)

// Pool is a fixed-size worker pool. Tasks submitted through a Group are
// executed in some worker, completion order across workers unspecified;
// Group.Wait returns only once every task submitted to that group has
// finished.
type Pool struct {
	workers *ants.Pool
}

// New builds a pool with exactly size goroutines available to run tasks.
func New(size int) (*Pool, error) {
	workers, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}
	return &Pool{workers: workers}, nil
}

// Running reports how many tasks are currently executing.
func (p *Pool) Running() int { return p.workers.Running() }

// Release signals shutdown, drains currently executing tasks, and blocks
// until every worker has exited. Tasks that never started are dropped.
func (p *Pool) Release() {
	p.workers.Release()
	for p.workers.Running() > 0 {
		time.Sleep(time.Millisecond)
	}
}

// Group scopes an enqueue-then-wait_all fan-out to a single batch of work
// (e.g. hashing one Merkle level, or a set of independent subtree
// updates), without waiting on work unrelated to that batch.
type Group struct {
	pool *Pool
	wg   sync.WaitGroup
	mu   sync.Mutex
	err  error
}

// NewGroup starts a fan-out scoped to this pool.
func (p *Pool) NewGroup() *Group {
	return &Group{pool: p}
}

// Go enqueues task. Submission never blocks the caller past acquiring a
// worker slot; the task itself runs asynchronously.
func (g *Group) Go(task func() error) {
	g.wg.Add(1)
	err := g.pool.workers.Submit(func() {
		defer g.wg.Done()
		if terr := task(); terr != nil {
			g.recordErr(terr)
		}
	})
	if err != nil {
		g.wg.Done()
		g.recordErr(err)
	}
}

func (g *Group) recordErr(err error) {
	g.mu.Lock()
	if g.err == nil {
		g.err = err
	}
	g.mu.Unlock()
}

// Wait blocks until every task enqueued on this group has completed, then
// returns the first error any of them produced, if any.
func (g *Group) Wait() error {
	g.wg.Wait()
	return g.err
}
