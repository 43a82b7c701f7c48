package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestLogger returns a middleware that emits a structured zap log line
// for every completed HTTP request. Server errors log at warn level; the
// health probe and scrape endpoint log at debug so they do not flood output.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := zapcore.InfoLevel
			switch {
			case status >= http.StatusInternalServerError:
				level = zapcore.WarnLevel
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				level = zapcore.DebugLevel
			}

			logger.Log(level, "http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("correlation_id", GetCorrelationID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
