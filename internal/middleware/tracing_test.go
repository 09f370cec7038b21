package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder
}

func TestTracingSpanNames(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/v1/digest/ai", "GET /v1/digest/ai"},
		{http.MethodGet, "/v1/ranking/engineering", "GET /v1/ranking/engineering"},
		{http.MethodGet, "/ready", "GET /ready"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			recorder := recordSpans(t)

			handler := Tracing("briefcast-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			if got := spans[0].Name(); got != tt.want {
				t.Errorf("span name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTracingIDsVisibleInHandler(t *testing.T) {
	recorder := recordSpans(t)

	var traceID, spanID string
	handler := Tracing("briefcast-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = GetTraceID(r)
		spanID = GetSpanID(r)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/digest/ai", nil))

	if traceID == "" || spanID == "" {
		t.Fatalf("handler saw trace id %q span id %q, want both non-empty", traceID, spanID)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	sc := spans[0].SpanContext()
	if sc.TraceID().String() != traceID {
		t.Errorf("trace id mismatch: span %s, handler %s", sc.TraceID(), traceID)
	}
	if sc.SpanID().String() != spanID {
		t.Errorf("span id mismatch: span %s, handler %s", sc.SpanID(), spanID)
	}
}

func TestTraceIDsEmptyWithoutSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/digest/ai", nil)
	if got := GetTraceID(req); got != "" {
		t.Errorf("GetTraceID without span = %q, want empty", got)
	}
	if got := GetSpanID(req); got != "" {
		t.Errorf("GetSpanID without span = %q, want empty", got)
	}
}
