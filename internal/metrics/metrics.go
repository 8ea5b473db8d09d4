// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordAuthRejection(reason string)
	RecordAuthEvent(event string)
	RecordFriendOutcome(outcome string)
	RecordReactOutcome(outcome string)
	RecordReconcileRepairs(kind string, count int)
	RecordDependencyFailure(dependency string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	authRejections *prometheus.CounterVec
	authEvents     *prometheus.CounterVec
	friendOutcomes *prometheus.CounterVec
	reactOutcomes  *prometheus.CounterVec
	repairs        *prometheus.CounterVec
	depFailures    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "friendsplace_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "friendsplace_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "friendsplace_auth_rejections_total",
			Help: "セッション検証の拒否理由別の件数",
		}, []string{"reason"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "friendsplace_auth_events_total",
			Help: "サインアップ・ログイン・パスワード変更などの認証イベント数",
		}, []string{"event"}),
		friendOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "friendsplace_friend_operations_total",
			Help: "フレンド操作の結果別の件数",
		}, []string{"outcome"}),
		reactOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "friendsplace_react_operations_total",
			Help: "リアクション操作の結果別の件数",
		}, []string{"outcome"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "friendsplace_reconcile_repairs_total",
			Help: "整合性ワーカーが修復した件数",
		}, []string{"kind"}),
		depFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "friendsplace_dependency_failures_total",
			Help: "外部依存（メール、メディア）の失敗件数",
		}, []string{"dependency"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.authRejections,
		c.authEvents,
		c.friendOutcomes,
		c.reactOutcomes,
		c.repairs,
		c.depFailures,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAuthRejection はセッション検証の拒否理由を記録する。
func (c *Collector) RecordAuthRejection(reason string) {
	c.authRejections.WithLabelValues(reason).Inc()
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// RecordFriendOutcome はフレンド操作の結果を記録する。
func (c *Collector) RecordFriendOutcome(outcome string) {
	c.friendOutcomes.WithLabelValues(outcome).Inc()
}

// RecordReactOutcome はリアクション操作の結果を記録する。
func (c *Collector) RecordReactOutcome(outcome string) {
	c.reactOutcomes.WithLabelValues(outcome).Inc()
}

// RecordReconcileRepairs は整合性ワーカーの修復件数を記録する。
func (c *Collector) RecordReconcileRepairs(kind string, count int) {
	c.repairs.WithLabelValues(kind).Add(float64(count))
}

// RecordDependencyFailure は外部依存の失敗を記録する。
func (c *Collector) RecordDependencyFailure(dependency string) {
	c.depFailures.WithLabelValues(dependency).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordAuthRejection(string)         {}
func (Nop) RecordAuthEvent(string)             {}
func (Nop) RecordFriendOutcome(string)         {}
func (Nop) RecordReactOutcome(string)          {}
func (Nop) RecordReconcileRepairs(string, int) {}
func (Nop) RecordDependencyFailure(string)     {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
