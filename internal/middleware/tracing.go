package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// TraceIDHeader carries the active trace ID back to the client.
const TraceIDHeader = "X-Trace-ID"

// Tracing instruments requests with OpenTelemetry server spans using W3C
// trace context propagation. Spans are named "<METHOD> <route>" with the
// route normalized like the HTTP metrics labels. Health check endpoints are not traced.
//
// Place it after RequestID so the request ID is already in the context.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		withHeader := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if traceID := GetTraceID(r); traceID != "" {
				w.Header().Set(TraceIDHeader, traceID)
			}
			next.ServeHTTP(w, r)
		})

		return otelhttp.NewHandler(withHeader, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + normalizePath(r.URL.Path)
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" && r.URL.Path != "/ready"
			}),
		)
	}
}

// GetTraceID extracts the trace ID from the request context, or "" if none.
func GetTraceID(r *http.Request) string {
	spanCtx := trace.SpanContextFromContext(r.Context())
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// GetSpanID extracts the span ID from the request context, or "" if none.
func GetSpanID(r *http.Request) string {
	spanCtx := trace.SpanContextFromContext(r.Context())
	if spanCtx.IsValid() {
		return spanCtx.SpanID().String()
	}
	return ""
}
