package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// knownRoutes maps request paths onto a bounded set of route labels so that
// IDs in the path do not explode label cardinality.
var knownRoutes = []struct {
	prefix string
	label  string
}{
	{"/query", "/query"},
	{"/runs/", "/runs/{id}"},
	{"/runs", "/runs"},
	{"/healthz", "/healthz"},
	{"/metrics", "/metrics"},
}

// RouteLabel returns the metric label for a request path.
func RouteLabel(path string) string {
	if path == "/" {
		return "/"
	}
	for _, r := range knownRoutes {
		if strings.HasPrefix(path, r.prefix) {
			return r.label
		}
	}
	return "other"
}

// MetricsMiddleware wraps an HTTP handler to record request metrics.
//
// It captures:
//   - finquery_http_requests_total (counter): method, route and status class
//   - finquery_http_request_duration_seconds (histogram): method and route
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := RouteLabel(r.URL.Path)
		statusStr := strconv.Itoa(sw.status/100) + "xx"

		RequestsTotal.WithLabelValues(r.Method, route, statusStr).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// WriteHeader captures the status code and delegates to the underlying writer.
func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write delegates to the underlying writer and marks the status as written.
func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush delegates to the underlying writer if it implements http.Flusher.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
