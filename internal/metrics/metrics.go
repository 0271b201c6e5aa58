// Package metrics exposes a prometheus.Collector reporting live
// pending/processing queue depth and cumulative admission counters for
// one (prefix, id) namespace.
package metrics

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace used in fully-qualified metrics names.
const namespace = "oraq"

// Reader is the subset of store access the collector needs to gather
// live queue depth. Implemented by *internal/rdb.RDB; kept as an
// interface here so this package has no import-cycle dependency on rdb.
type Reader interface {
	LLen(ctx context.Context, key string) (int64, error)
}

// Counters tracks cumulative counts the collector cannot derive from a
// point-in-time store read. A *Queue owns one and increments it inline
// as the admission protocol runs. All fields are accessed with
// sync/atomic since admissions happen concurrently across Submit calls.
type Counters struct {
	Admitted      uint64
	TimeoutEscape uint64
	StuckReaped   uint64
}

func (c *Counters) IncAdmitted()      { atomic.AddUint64(&c.Admitted, 1) }
func (c *Counters) IncTimeoutEscape() { atomic.AddUint64(&c.TimeoutEscape, 1) }
func (c *Counters) AddStuckReaped(n uint64) { atomic.AddUint64(&c.StuckReaped, n) }

func (c *Counters) loadAdmitted() uint64      { return atomic.LoadUint64(&c.Admitted) }
func (c *Counters) loadTimeoutEscape() uint64 { return atomic.LoadUint64(&c.TimeoutEscape) }
func (c *Counters) loadStuckReaped() uint64   { return atomic.LoadUint64(&c.StuckReaped) }

// QueueCollector gathers admission-control metrics for one (prefix, id)
// namespace. It implements prometheus.Collector.
type QueueCollector struct {
	reader        Reader
	counters      *Counters
	pendingKey    string
	processingKey string
	prefix, id    string
}

// NewQueueCollector returns a collector for the given namespace.
func NewQueueCollector(reader Reader, counters *Counters, prefix, id, pendingKey, processingKey string) *QueueCollector {
	return &QueueCollector{
		reader:        reader,
		counters:      counters,
		pendingKey:    pendingKey,
		processingKey: processingKey,
		prefix:        prefix,
		id:            id,
	}
}

var (
	pendingLengthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "pending_length"),
		"Number of jobs currently waiting for admission.",
		[]string{"prefix", "id"}, nil,
	)
	processingLengthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "processing_length"),
		"Number of jobs currently admitted and executing.",
		[]string{"prefix", "id"}, nil,
	)
	admittedTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "admitted_total"),
		"Cumulative number of jobs admitted.",
		[]string{"prefix", "id"}, nil,
	)
	timeoutEscapesTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "timeout_escapes_total"),
		"Cumulative number of admissions granted via the timeout escape hatch.",
		[]string{"prefix", "id"}, nil,
	)
	stuckJobsReapedTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "stuck_jobs_reaped_total"),
		"Cumulative number of job ids removed by the stuck-job sweep.",
		[]string{"prefix", "id"}, nil,
	)
)

func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	pendingLen, err := c.reader.LLen(ctx, c.pendingKey)
	if err != nil {
		log.Printf("oraq: failed to collect pending length: %v", err)
	}
	processingLen, err := c.reader.LLen(ctx, c.processingKey)
	if err != nil {
		log.Printf("oraq: failed to collect processing length: %v", err)
	}

	ch <- prometheus.MustNewConstMetric(pendingLengthDesc, prometheus.GaugeValue, float64(pendingLen), c.prefix, c.id)
	ch <- prometheus.MustNewConstMetric(processingLengthDesc, prometheus.GaugeValue, float64(processingLen), c.prefix, c.id)
	ch <- prometheus.MustNewConstMetric(admittedTotalDesc, prometheus.CounterValue, float64(c.counters.loadAdmitted()), c.prefix, c.id)
	ch <- prometheus.MustNewConstMetric(timeoutEscapesTotalDesc, prometheus.CounterValue, float64(c.counters.loadTimeoutEscape()), c.prefix, c.id)
	ch <- prometheus.MustNewConstMetric(stuckJobsReapedTotalDesc, prometheus.CounterValue, float64(c.counters.loadStuckReaped()), c.prefix, c.id)
}
