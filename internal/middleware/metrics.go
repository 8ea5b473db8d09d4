package middleware

import (
	"net/http"
	"time"

	"github.com/hitoshi/friendsplace/internal/metrics"
)

// NewMetricsMiddleware はレスポンスステータスと処理時間を記録するミドルウェアを返す。
func NewMetricsMiddleware(m metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			m.RecordHTTPStatus(rec.statusCode)
			m.RecordRequestLatency(time.Since(start))
		})
	}
}
