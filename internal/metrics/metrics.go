// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// エンジンとトランスポート層から利用する。
type MetricsCollector interface {
	RecordBidAccepted()
	RecordBidRejected(reason string)
	RecordItemsClosed(n int)
	RecordPersistFailure()
	RecordAuditFailure()
	RecordAuditDropped(sink string)
	ObserveCommit(d time.Duration)

	ConnectionOpened()
	ConnectionClosed()
	RecordIntent(intentType string)
	RecordRateLimited()
	RecordSlowClientDropped()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	bidsAccepted    prometheus.Counter
	bidsRejected    *prometheus.CounterVec
	itemsClosed     prometheus.Counter
	persistFailures prometheus.Counter
	auditFailures   prometheus.Counter
	auditDropped    *prometheus.CounterVec
	commitLatency   prometheus.Histogram
	wsConnections   prometheus.Gauge
	intents         *prometheus.CounterVec
	rateLimited     prometheus.Counter
	slowDropped     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livebid_bids_accepted_total",
			Help: "受理された入札の合計数",
		}),
		bidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livebid_bids_rejected_total",
			Help: "拒否理由別の入札拒否数",
		}, []string{"reason"}),
		itemsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livebid_items_closed_total",
			Help: "クローズされた商品の合計数",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livebid_persist_failures_total",
			Help: "スナップショット保存失敗の合計数",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livebid_audit_failures_total",
			Help: "監査ログ追記失敗の合計数",
		}),
		auditDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livebid_audit_dropped_total",
			Help: "キュー満杯により破棄された監査レコード数（シンク別）",
		}, []string{"sink"}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livebid_commit_latency_seconds",
			Help:    "状態遷移から永続化・配信完了までのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livebid_ws_connections",
			Help: "接続中のWebSocketクライアント数",
		}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livebid_intents_total",
			Help: "種別ごとの受信インテント数",
		}, []string{"type"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livebid_intents_rate_limited_total",
			Help: "レート制限で破棄されたインテントの合計数",
		}),
		slowDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livebid_slow_clients_dropped_total",
			Help: "送信バッファ溢れにより切断したクライアントの合計数",
		}),
	}

	reg.MustRegister(
		c.bidsAccepted,
		c.bidsRejected,
		c.itemsClosed,
		c.persistFailures,
		c.auditFailures,
		c.auditDropped,
		c.commitLatency,
		c.wsConnections,
		c.intents,
		c.rateLimited,
		c.slowDropped,
	)

	return c
}

// RecordBidAccepted は入札の受理を記録する。
func (c *Collector) RecordBidAccepted() {
	c.bidsAccepted.Inc()
}

// RecordBidRejected は入札の拒否を理由別に記録する。
func (c *Collector) RecordBidRejected(reason string) {
	c.bidsRejected.WithLabelValues(reason).Inc()
}

// RecordItemsClosed はクローズされた商品数を記録する。
func (c *Collector) RecordItemsClosed(n int) {
	c.itemsClosed.Add(float64(n))
}

// RecordPersistFailure はスナップショット保存の失敗を記録する。
func (c *Collector) RecordPersistFailure() {
	c.persistFailures.Inc()
}

// RecordAuditFailure は監査ログ追記の失敗を記録する。
func (c *Collector) RecordAuditFailure() {
	c.auditFailures.Inc()
}

// RecordAuditDropped は非同期シンクで破棄された監査レコードを記録する。
func (c *Collector) RecordAuditDropped(sink string) {
	c.auditDropped.WithLabelValues(sink).Inc()
}

// ObserveCommit はコミットのレイテンシを記録する。
func (c *Collector) ObserveCommit(d time.Duration) {
	c.commitLatency.Observe(d.Seconds())
}

// ConnectionOpened は接続数を増やす。
func (c *Collector) ConnectionOpened() {
	c.wsConnections.Inc()
}

// ConnectionClosed は接続数を減らす。
func (c *Collector) ConnectionClosed() {
	c.wsConnections.Dec()
}

// RecordIntent は受信したインテントを種別ごとに記録する。
func (c *Collector) RecordIntent(intentType string) {
	c.intents.WithLabelValues(intentType).Inc()
}

// RecordRateLimited はレート制限による破棄を記録する。
func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// RecordSlowClientDropped は低速クライアントの切断を記録する。
func (c *Collector) RecordSlowClientDropped() {
	c.slowDropped.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
