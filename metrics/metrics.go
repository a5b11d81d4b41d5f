// Package metrics defines the observability surface the engine and the
// message dispatcher report through; prometheus is the concrete
// implementation, but neither the engine nor the dispatcher name-checks
// it directly.
package metrics

// Metrics receives engine- and dispatcher-level events. Every method
// takes plain types rather than worldstate/wire types so this package
// stays a leaf dependency of both.
type Metrics interface {
	// TreeSize reports a tree's leaf count immediately after a successful
	// engine-level AppendLeaves, AppendIndexedLeaves or UpdatePublicData
	// call. Writes made inside SyncBlock are not reported.
	TreeSize(treeID uint32, size uint64)
	// Commit records one engine-level Commit call.
	Commit()
	// Rollback records one engine-level Rollback call, whether explicit
	// or triggered internally by a failed SyncBlock.
	Rollback()
	// SyncBlockResult records the outcome of one SyncBlock call.
	SyncBlockResult(ok bool)
	// DispatchRequest records one dispatched wire request by its message
	// type, along with whether its handler succeeded.
	DispatchRequest(msgType uint32, ok bool)
}

// Noop discards every event; it's the default when no Metrics is
// configured.
var Noop Metrics = noop{}

type noop struct{}

func (noop) TreeSize(uint32, uint64)      {}
func (noop) Commit()                      {}
func (noop) Rollback()                    {}
func (noop) SyncBlockResult(bool)         {}
func (noop) DispatchRequest(uint32, bool) {}
