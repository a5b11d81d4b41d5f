package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ytrtdfkgf/merkle-worldstate/metrics"
)

var _ metrics.Metrics = (*Collector)(nil)

// NewCollector builds a Metrics implementation backed by prometheus
// gauges and counters, registered against the default registry.
func NewCollector() *Collector {
	treeSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worldstate_tree_size",
		Help: "Leaf count of each tree after its most recent write.",
	}, []string{"tree_id"})
	commits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worldstate_commits_total",
		Help: "Number of engine-level Commit calls.",
	})
	rollbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "worldstate_rollbacks_total",
		Help: "Number of engine-level Rollback calls, explicit or sync_block-triggered.",
	})
	syncBlocks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worldstate_sync_block_total",
		Help: "Number of SyncBlock calls by outcome.",
	}, []string{"result"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worldstate_dispatch_requests_total",
		Help: "Number of dispatched wire requests by message type and outcome.",
	}, []string{"msg_type", "result"})

	prometheus.MustRegister(treeSize, commits, rollbacks, syncBlocks, requests)

	return &Collector{
		treeSize:   treeSize,
		commits:    commits,
		rollbacks:  rollbacks,
		syncBlocks: syncBlocks,
		requests:   requests,
	}
}

type Collector struct {
	treeSize   *prometheus.GaugeVec
	commits    prometheus.Counter
	rollbacks  prometheus.Counter
	syncBlocks *prometheus.CounterVec
	requests   *prometheus.CounterVec
}

func (c *Collector) TreeSize(treeID uint32, size uint64) {
	c.treeSize.WithLabelValues(treeIDLabel(treeID)).Set(float64(size))
}

func (c *Collector) Commit() { c.commits.Inc() }

func (c *Collector) Rollback() { c.rollbacks.Inc() }

func (c *Collector) SyncBlockResult(ok bool) {
	c.syncBlocks.WithLabelValues(resultLabel(ok)).Inc()
}

func (c *Collector) DispatchRequest(msgType uint32, ok bool) {
	c.requests.WithLabelValues(msgTypeLabel(msgType), resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

var treeIDNames = [...]string{"nullifier", "note_hash", "public_data", "l1_to_l2_message", "archive"}

func treeIDLabel(id uint32) string {
	if int(id) < len(treeIDNames) {
		return treeIDNames[id]
	}
	return strconv.FormatUint(uint64(id), 10)
}

func msgTypeLabel(t uint32) string {
	return strconv.FormatUint(uint64(t), 10)
}
