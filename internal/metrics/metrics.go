// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サイクル結果のラベル値
const (
	CycleCompleted = "completed"
	CycleSkipped   = "skipped"
	CycleFailed    = "failed"
)

// フェッチ結果のラベル値
const (
	FetchOK          = "ok"
	FetchNotModified = "not_modified"
	FetchError       = "error"
)

// Collector はポーリングサイクルのメトリクスを収集する。
type Collector struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	fetches         *prometheus.CounterVec
	fetched         prometheus.Counter
	lookupFailures  prometheus.Counter
	deliveries      *prometheus.CounterVec
	lastFetchedTime prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghnotify_cycles_total",
			Help: "結果別のポーリングサイクル数",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghnotify_cycle_duration_seconds",
			Help:    "スキップされなかったサイクルの所要時間（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghnotify_fetch_total",
			Help: "結果別の通知一覧取得回数",
		}, []string{"result"}),
		fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghnotify_notifications_fetched_total",
			Help: "取得した通知の合計数",
		}),
		lookupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ghnotify_lookup_failures_total",
			Help: "詳細取得に失敗した通知の合計数",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ghnotify_deliveries_total",
			Help: "結果別のSlack送信数",
		}, []string{"result"}),
		lastFetchedTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ghnotify_cursor_last_fetched_timestamp_seconds",
			Help: "保存済みカーソルのlast-fetched（Unix秒）",
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.fetches,
		c.fetched,
		c.lookupFailures,
		c.deliveries,
		c.lastFetchedTime,
	)

	return c
}

// RecordCycle はサイクルの結果を記録する。スキップ以外は所要時間も記録する。
func (c *Collector) RecordCycle(result string, duration time.Duration) {
	c.cycles.WithLabelValues(result).Inc()
	if result != CycleSkipped {
		c.cycleDuration.Observe(duration.Seconds())
	}
}

// RecordFetch は通知一覧取得の結果と件数を記録する。
func (c *Collector) RecordFetch(result string, count int) {
	c.fetches.WithLabelValues(result).Inc()
	c.fetched.Add(float64(count))
}

// RecordLookupFailure は詳細取得の失敗を記録する。
func (c *Collector) RecordLookupFailure() {
	c.lookupFailures.Inc()
}

// RecordDelivery はSlack送信の結果を記録する。
func (c *Collector) RecordDelivery(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.deliveries.WithLabelValues(result).Inc()
}

// RecordCursor は保存したカーソルを記録する。
func (c *Collector) RecordCursor(lastFetched time.Time) {
	c.lastFetchedTime.Set(float64(lastFetched.Unix()))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
