// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// アカウント操作の種別
const (
	OpRegister = "register"
	OpLogin    = "login"
)

// アカウント操作の結果
const (
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層、インポーターから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordArticlesServed(count int)
	RecordAccountOutcome(op, outcome string)
	RecordImport(created, updated, skipped int)
	RecordImportFailure(reason string)
	RecordPrune(deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	articlesServed  prometheus.Counter
	accountOutcomes *prometheus.CounterVec
	importedTotal   *prometheus.CounterVec
	importFailures  *prometheus.CounterVec
	prunedTotal     prometheus.Counter
	lastPrune       prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insighthub_http_requests_total",
			Help: "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insighthub_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		articlesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insighthub_articles_served_total",
			Help: "/api/newsで返した記事の合計数",
		}),
		accountOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insighthub_account_operations_total",
			Help: "登録・ログインの結果別の件数",
		}, []string{"op", "outcome"}),
		importedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insighthub_imported_articles_total",
			Help: "インポートで作成・更新・スキップされた記事数",
		}, []string{"result"}),
		importFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insighthub_import_failures_total",
			Help: "失敗したインポートの件数",
		}, []string{"reason"}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insighthub_pruned_articles_total",
			Help: "保持期間を過ぎて削除された記事数",
		}),
		lastPrune: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "insighthub_last_prune_success_timestamp_seconds",
			Help: "最後に削除ジョブが成功した時刻（UNIX秒）",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.articlesServed,
		c.accountOutcomes,
		c.importedTotal,
		c.importFailures,
		c.prunedTotal,
		c.lastPrune,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡し、ラベルのカーディナリティを抑える。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordArticlesServed は返却した記事数を記録する。
func (c *Collector) RecordArticlesServed(count int) {
	c.articlesServed.Add(float64(count))
}

// RecordAccountOutcome は登録・ログインの結果を記録する。
func (c *Collector) RecordAccountOutcome(op, outcome string) {
	c.accountOutcomes.WithLabelValues(op, outcome).Inc()
}

// RecordImport はインポート1回分の結果を記録する。
func (c *Collector) RecordImport(created, updated, skipped int) {
	c.importedTotal.WithLabelValues("created").Add(float64(created))
	c.importedTotal.WithLabelValues("updated").Add(float64(updated))
	c.importedTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordImportFailure はインポートの失敗を記録する。
func (c *Collector) RecordImportFailure(reason string) {
	c.importFailures.WithLabelValues(reason).Inc()
}

// RecordPrune は削除ジョブの成功と削除件数を記録する。
func (c *Collector) RecordPrune(deleted int64) {
	c.prunedTotal.Add(float64(deleted))
	c.lastPrune.SetToCurrentTime()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。
// CLIのワンショットコマンドやテストで使用する。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Nop) RecordArticlesServed(int)                             {}
func (Nop) RecordAccountOutcome(string, string)                  {}
func (Nop) RecordImport(int, int, int)                           {}
func (Nop) RecordImportFailure(string)                           {}
func (Nop) RecordPrune(int64)                                    {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
