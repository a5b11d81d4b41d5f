package wire

import (
	"github.com/ytrtdfkgf/merkle-worldstate/errs"
	"github.com/ytrtdfkgf/merkle-worldstate/pool"
)

// AsyncRunner is the async op runner (C9): it wraps each dispatch in a
// task run on the shared worker pool and hands the caller a future that
// resolves to the encoded response envelope once that task completes,
// or to an ErrShutdown envelope if the pool never ran it at all.
type AsyncRunner struct {
	pool       *pool.Pool
	dispatcher *Dispatcher
}

// NewAsyncRunner builds a runner that submits dispatch work to p.
func NewAsyncRunner(p *pool.Pool, d *Dispatcher) *AsyncRunner {
	return &AsyncRunner{pool: p, dispatcher: d}
}

// Submit enqueues header/body for dispatch and returns a future that
// receives exactly one encoded ResponseEnvelope.
func (r *AsyncRunner) Submit(header Header, body []byte) <-chan []byte {
	future := make(chan []byte, 1)
	group := r.pool.NewGroup()
	group.Go(func() error {
		future <- r.dispatcher.Dispatch(header, body)
		return nil
	})

	go func() {
		if err := group.Wait(); err != nil {
			// Submission itself failed (the pool is shutting down), so the
			// task above never ran and nothing has written to future yet.
			select {
			case future <- encodeEnvelope(header.RequestID, nil, errs.ErrShutdown):
			default:
			}
		}
	}()

	return future
}
