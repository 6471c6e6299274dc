// Package metrics 暴露批量挂单与批量撤单的 Prometheus 指标：
//
//	lister_items_total{stage,result}      逐项结果（listed / failed）
//	lister_create_retries_total           创建阶段重试次数
//	lister_approvals_total{result}        授权交易（confirmed / failed）
//	lister_runs_total{kind,status}        运行次数（list|cancel, complete|cancelled）
//	lister_run_duration_seconds{kind}     单次运行耗时
//	lister_cancel_chunks_total{result}    撤单分片（ok / failed）
//	lister_cancel_orders_total{status}    撤单逐项结果（cancelled / pending / failed / skipped_cancelled）
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"orderbook-lister/internal/cancellation"
	"orderbook-lister/internal/listing"
)

const namespace = "lister"

// Collector 同时实现 listing.Observer 与 cancellation.Observer。
type Collector struct {
	items         *prometheus.CounterVec
	createRetries prometheus.Counter
	approvals     *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	cancelChunks  *prometheus.CounterVec
	cancelOrders  *prometheus.CounterVec
}

var (
	_ listing.Observer      = (*Collector)(nil)
	_ cancellation.Observer = (*Collector)(nil)
)

// New 创建指标集合并注册到 reg。
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Listing items by final stage and result",
			},
			[]string{"stage", "result"},
		),
		createRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "create_retries_total",
				Help:      "Create calls retried after a failure",
			},
		),
		approvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_total",
				Help:      "Approval transactions by result",
			},
			[]string{"result"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Bulk runs by kind and terminal status",
			},
			[]string{"kind", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of bulk runs",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		cancelChunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cancel_chunks_total",
				Help:      "Cancellation chunks by result",
			},
			[]string{"result"},
		),
		cancelOrders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cancel_orders_total",
				Help:      "Cancellation outcomes by status",
			},
			[]string{"status"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			c.items,
			c.createRetries,
			c.approvals,
			c.runs,
			c.runDuration,
			c.cancelChunks,
			c.cancelOrders,
		)
	}
	return c
}

func (c *Collector) ItemFailed(stage listing.Stage) {
	c.items.WithLabelValues(string(stage), "failed").Inc()
}

func (c *Collector) ItemListed() {
	c.items.WithLabelValues(string(listing.StageCreation), "listed").Inc()
}

func (c *Collector) CreateRetried() {
	c.createRetries.Inc()
}

func (c *Collector) ApprovalSent(err error) {
	result := "confirmed"
	if err != nil {
		result = "failed"
	}
	c.approvals.WithLabelValues(result).Inc()
}

func (c *Collector) RunFinished(res listing.Result) {
	status := string(listing.StatusComplete)
	if res.Cancelled {
		status = string(listing.StatusCancelled)
	}
	c.runs.WithLabelValues("list", status).Inc()
	if !res.StartedAt.IsZero() && !res.FinishedAt.IsZero() {
		c.runDuration.WithLabelValues("list").Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	}
}

func (c *Collector) ChunkFinished(_ int, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.cancelChunks.WithLabelValues(result).Inc()
}

func (c *Collector) CancellationFinished(res cancellation.Result) {
	c.cancelOrders.WithLabelValues(string(cancellation.OutcomeCancelled)).Add(float64(res.Successful))
	c.cancelOrders.WithLabelValues(string(cancellation.OutcomePending)).Add(float64(res.Pending))
	c.cancelOrders.WithLabelValues(string(cancellation.OutcomeFailed)).Add(float64(res.Failed))
	c.cancelOrders.WithLabelValues(string(cancellation.OutcomeSkipped)).Add(float64(res.Skipped))
	status := cancellation.StatusComplete
	if res.Stopped {
		status = cancellation.StatusCancelled
	}
	c.runs.WithLabelValues("cancel", string(status)).Inc()
	if !res.StartedAt.IsZero() && !res.FinishedAt.IsZero() {
		c.runDuration.WithLabelValues("cancel").Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	}
}
