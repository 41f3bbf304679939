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
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthzDecision(resource, action string, allowed bool)
	RecordModerationTransition(entity, to string)
	RecordAccountAction(flow, step, outcome string)
	RecordNotificationFailure(flow string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authzDecisions    *prometheus.CounterVec
	moderation        *prometheus.CounterVec
	accountActions    *prometheus.CounterVec
	notificationFails *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booklog_authz_decisions_total",
			Help: "認可判定の合計数",
		}, []string{"resource", "action", "result"}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booklog_moderation_transitions_total",
			Help: "モデレーション状態遷移の合計数",
		}, []string{"entity", "to"}),
		accountActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booklog_account_actions_total",
			Help: "アカウント操作（メール変更・パスワードリセット・削除）の合計数",
		}, []string{"flow", "step", "outcome"}),
		notificationFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booklog_notification_failures_total",
			Help: "通知送信失敗の合計数",
		}, []string{"flow"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booklog_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booklog_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.authzDecisions,
		c.moderation,
		c.accountActions,
		c.notificationFails,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordAuthzDecision は認可判定の結果を記録する。
func (c *Collector) RecordAuthzDecision(resource, action string, allowed bool) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	c.authzDecisions.WithLabelValues(resource, action, result).Inc()
}

// RecordModerationTransition はモデレーション状態遷移を記録する。
func (c *Collector) RecordModerationTransition(entity, to string) {
	c.moderation.WithLabelValues(entity, to).Inc()
}

// RecordAccountAction はアカウント操作の各ステップの結果を記録する。
// outcomeには "ok" またはエラーコードを指定する。
func (c *Collector) RecordAccountAction(flow, step, outcome string) {
	c.accountActions.WithLabelValues(flow, step, outcome).Inc()
}

// RecordNotificationFailure は通知送信失敗を記録する。
func (c *Collector) RecordNotificationFailure(flow string) {
	c.notificationFails.WithLabelValues(flow).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAuthzDecision(string, string, bool) {}
func (Nop) RecordModerationTransition(string, string) {}
func (Nop) RecordAccountAction(string, string, string) {}
func (Nop) RecordNotificationFailure(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はgathererの内容をPrometheusテキスト形式で返すハンドラー。
// 収集エラーがあっても取得できた分は返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
