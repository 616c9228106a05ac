package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
)

// RequestLogger writes one access-log entry per request.
func RequestLogger(log logger.ILogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + redactQuery(r)
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			details := map[string]interface{}{
				"status":     status,
				"method":     r.Method,
				"path":       path,
				"latency_ms": time.Since(start).Milliseconds(),
				"client_ip":  r.RemoteAddr,
				"request_id": chimw.GetReqID(r.Context()),
				"bytes":      ww.BytesWritten(),
			}

			switch {
			case status >= 500:
				log.Error("HTTP", "request failed", details)
			case status >= 400:
				log.Warn("HTTP", "request rejected", details)
			default:
				log.Info("HTTP", "request served", details)
			}
		})
	}
}

// redactQuery hides bearer tokens passed as query parameters.
func redactQuery(r *http.Request) string {
	q := r.URL.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
	}
	return q.Encode()
}
