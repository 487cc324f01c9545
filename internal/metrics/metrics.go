package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sniperthink/chatqueue/internal/queue"
	"github.com/sniperthink/chatqueue/pkg/log"
)

// QueueMetrics exposes queue lifecycle counters and partition gauges. It
// implements queue.Observer for the event counters; the gauges are refreshed
// by a polling collector because depth and in-flight counts live in the
// store, not in process memory.
type QueueMetrics struct {
	EnqueueTotal    *prometheus.CounterVec
	DequeueTotal    *prometheus.CounterVec
	CompleteTotal   *prometheus.CounterVec
	FailTotal       *prometheus.CounterVec
	DeadLetterTotal *prometheus.CounterVec
	RecoveredTotal  prometheus.Counter
	QueueDepth      *prometheus.GaugeVec
	InFlight        *prometheus.GaugeVec
	DeadLetterDepth *prometheus.GaugeVec

	queue  *queue.Queue
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ queue.Observer = (*QueueMetrics)(nil)

// New builds and registers the collectors. Pass nil to register on the
// default registry.
func New(reg prometheus.Registerer, q *queue.Queue, logger *log.Logger) *QueueMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &QueueMetrics{
		EnqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatqueue_enqueue_total",
			Help: "Messages accepted into a partition log.",
		}, []string{"partition"}),
		DequeueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatqueue_dequeue_total",
			Help: "Messages handed to a worker under a lease.",
		}, []string{"partition"}),
		CompleteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatqueue_complete_total",
			Help: "Messages acknowledged as processed.",
		}, []string{"partition"}),
		FailTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatqueue_fail_total",
			Help: "Failed processing attempts (including those that dead-lettered).",
		}, []string{"partition"}),
		DeadLetterTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatqueue_dead_letter_total",
			Help: "Messages retired to the dead-letter store.",
		}, []string{"partition"}),
		RecoveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatqueue_leases_recovered_total",
			Help: "Messages returned to their partition by the recovery sweep.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatqueue_partition_depth",
			Help: "Pending messages per partition.",
		}, []string{"partition"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatqueue_partition_in_flight",
			Help: "Leased messages per partition.",
		}, []string{"partition"}),
		DeadLetterDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatqueue_partition_dead_letters",
			Help: "Live dead-letter entries per partition.",
		}, []string{"partition"}),
		queue:  q,
		logger: logger.Named("metrics"),
		ctx:    ctx,
		cancel: cancel,
	}
	reg.MustRegister(
		m.EnqueueTotal, m.DequeueTotal, m.CompleteTotal, m.FailTotal,
		m.DeadLetterTotal, m.RecoveredTotal,
		m.QueueDepth, m.InFlight, m.DeadLetterDepth,
	)
	return m
}

// queue.Observer

func (m *QueueMetrics) MessageEnqueued(partition string) {
	m.EnqueueTotal.WithLabelValues(partition).Inc()
}

func (m *QueueMetrics) MessageDequeued(partition string) {
	m.DequeueTotal.WithLabelValues(partition).Inc()
}

func (m *QueueMetrics) MessageCompleted(partition string) {
	m.CompleteTotal.WithLabelValues(partition).Inc()
}

func (m *QueueMetrics) MessageFailed(partition string, deadLettered bool) {
	m.FailTotal.WithLabelValues(partition).Inc()
	if deadLettered {
		m.DeadLetterTotal.WithLabelValues(partition).Inc()
	}
}

func (m *QueueMetrics) LeasesRecovered(n int) {
	m.RecoveredTotal.Add(float64(n))
}

// StartCollector refreshes the partition gauges from Queue.Stats every
// interval (default 10s).
func (m *QueueMetrics) StartCollector(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.collect()
			}
		}
	}()
}

// StopCollector halts the refresh loop.
func (m *QueueMetrics) StopCollector() {
	m.cancel()
	m.wg.Wait()
}

func (m *QueueMetrics) collect() {
	stats, err := m.queue.Stats(m.ctx)
	if err != nil {
		m.logger.Warn("stats collection failed", zap.Error(err))
		return
	}
	for partition, ps := range stats.Partitions {
		m.QueueDepth.WithLabelValues(partition).Set(float64(ps.Depth))
		m.InFlight.WithLabelValues(partition).Set(float64(ps.InFlight))
		m.DeadLetterDepth.WithLabelValues(partition).Set(float64(ps.DeadLettered))
	}
}
