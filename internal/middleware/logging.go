package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/teachme/backend/internal/logger"
	"github.com/teachme/backend/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogger logs each request and records it in m, labelled by the
// matched route template.
func RequestLogger(log *logger.Logger, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			dur := time.Since(start)
			m.ObserveHTTP(r.Method, route, strconv.Itoa(rec.status), dur)

			kv := []interface{}{"method", r.Method, "route", route, "status", rec.status, "duration_ms", dur.Milliseconds()}
			if rec.status >= http.StatusInternalServerError {
				log.Error("request failed", kv...)
				return
			}
			log.Debug("request", kv...)
		})
	}
}
