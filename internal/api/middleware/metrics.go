package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aetos53t/ping/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath collapses ids so metric labels stay low-cardinality.
func normalizePath(path string) string {
	if path == "/agents" || !strings.HasPrefix(path, "/") {
		return path
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) >= 3 && parts[1] == "agents":
		parts[2] = ":id"
		if len(parts) >= 5 && parts[3] == "messages" {
			parts[4] = ":otherId"
		}
		if len(parts) >= 5 && parts[3] == "contacts" {
			parts[4] = ":contactId"
		}
		return strings.Join(parts, "/")
	case len(parts) >= 3 && parts[1] == "messages":
		parts[2] = ":id"
		return strings.Join(parts, "/")
	}
	return path
}
