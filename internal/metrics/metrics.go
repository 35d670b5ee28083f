// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 収集・編纂・配信の各ジョブとサービス層から利用する。
type MetricsCollector interface {
	RecordFetchSuccess()
	RecordFetchFailure(reason string)
	RecordItemsAppended(count int)
	RecordDigestCompiled()
	RecordDelivery(sent bool)
	RecordSummarizerLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess      prometheus.Counter
	fetchFail         *prometheus.CounterVec
	itemsAppended     prometheus.Counter
	digestsCompiled   prometheus.Counter
	deliveries        *prometheus.CounterVec
	summarizerLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_fetch_success_total",
			Help: "フィード収集成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_fetch_fail_total",
			Help: "フィード収集失敗の合計数（理由別）",
		}, []string{"reason"}),
		itemsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_items_appended_total",
			Help: "記事ログに追記された記事の合計数",
		}),
		digestsCompiled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdigest_digests_compiled_total",
			Help: "編纂されたダイジェストの合計数",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdigest_deliveries_total",
			Help: "メール配信の合計数（結果別）",
		}, []string{"result"}),
		summarizerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newsdigest_summarizer_latency_seconds",
			Help:    "要約APIのレイテンシ（秒）",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.itemsAppended,
		c.digestsCompiled,
		c.deliveries,
		c.summarizerLatency,
	)

	return c
}

// RecordFetchSuccess はフィード収集の成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフィード収集の失敗を理由別に記録する。
func (c *Collector) RecordFetchFailure(reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordItemsAppended は追記された記事数を記録する。
func (c *Collector) RecordItemsAppended(count int) {
	c.itemsAppended.Add(float64(count))
}

// RecordDigestCompiled はダイジェスト編纂の完了を記録する。
func (c *Collector) RecordDigestCompiled() {
	c.digestsCompiled.Inc()
}

// RecordDelivery はメール配信の結果を記録する。
func (c *Collector) RecordDelivery(sent bool) {
	result := "sent"
	if !sent {
		result = "failed"
	}
	c.deliveries.WithLabelValues(result).Inc()
}

// RecordSummarizerLatency は要約API呼び出しのレイテンシを記録する。
func (c *Collector) RecordSummarizerLatency(duration time.Duration) {
	c.summarizerLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
