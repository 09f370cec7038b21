package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath collapses dynamic path segments into route patterns so the
// per-path metric cardinality stays bounded: /v1/digest/ai becomes
// /v1/digest/{category}.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/metrics":
		return path
	}

	if strings.HasPrefix(path, "/v1/digest/") {
		return "/v1/digest/{category}"
	}
	if strings.HasPrefix(path, "/v1/ranking/") {
		return "/v1/ranking/{category}"
	}

	// Unknown routes pass through unchanged; the mux 404s them anyway.
	return path
}

// metricsResponseWriter captures the status code and bytes written.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// HTTPMetrics records request count, duration, and response size per
// normalized route. /health and /ready are excluded; probes would dominate
// the series.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				mrw.size,
			)
		})
	}
}
