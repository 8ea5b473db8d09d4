package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/friendsplace/internal/middleware"
	"github.com/hitoshi/friendsplace/internal/model"
)

// healthCheckTimeout はヘルスチェックでDB疎通を待つ上限。
const healthCheckTimeout = 2 * time.Second

// Pinger はヘルスチェック対象の依存。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health はDB疎通を確認し、稼働状態を返す。
// GET /health
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewInternalError())
				return
			}
		}
		writeData(w, http.StatusOK, map[string]string{"state": "ok"})
	}
}
