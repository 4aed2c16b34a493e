package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"gatehouse-hq/gatehouse/pkg/telemetry/logging"
)

// statusWriter wraps http.ResponseWriter to capture the status code
// while keeping the writer's optional interfaces (Hijacker, Flusher)
// reachable through http.NewResponseController.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.status = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	if !sw.written {
		sw.status = http.StatusOK
		sw.written = true
	}
	return sw.ResponseWriter.Write(p)
}

// Unwrap exposes the underlying writer to http.NewResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// AccessLog emits one structured record per completed request. Client
// addresses pass through the anonymizer before logging.
func AccessLog(anonymizer *logging.Anonymizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			if sw.status >= 500 {
				level = slog.LevelWarn
			}
			slog.Log(r.Context(), level, "request completed",
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"proto", r.Proto,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"client", anonymizer.Client(r.RemoteAddr),
			)
		})
	}
}
