package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "echospot"

// DBOperation represents the type of database operation being traced.
type DBOperation string

const (
	// DBOperationQuery represents a read.
	DBOperationQuery DBOperation = "query"
	// DBOperationInsert represents an insert.
	DBOperationInsert DBOperation = "insert"
	// DBOperationUpdate represents an update.
	DBOperationUpdate DBOperation = "update"
	// DBOperationUpsert represents an insert-or-update.
	DBOperationUpsert DBOperation = "upsert"
)

// Database systems recorded in db.system.
const (
	DBSystemPostgres = "postgresql"
	DBSystemMongo    = "mongodb"
)

// StartDBSpan creates a new span for a database operation.
// Returns the new context and a function to end the span.
//
// Example usage:
//
//	ctx, endSpan := tracing.StartDBSpan(ctx, tracing.DBSystemPostgres, "spots", tracing.DBOperationQuery)
//	defer func() { endSpan(err) }()
func StartDBSpan(ctx context.Context, system, table string, operation DBOperation) (context.Context, func(error)) {
	tracer := otel.Tracer(instrumentationName + "/db")

	spanName := string(operation)
	if table != "" {
		spanName = spanName + " " + table
	}

	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", string(operation)),
		),
	)

	if table != "" {
		span.SetAttributes(attribute.String("db.collection.name", table))
	}

	return ctx, endFunc(span)
}

// StartProviderSpan creates a client span around a call to an external
// provider (speech-to-text, translation, blob storage).
func StartProviderSpan(ctx context.Context, provider, operation string) (context.Context, func(error)) {
	tracer := otel.Tracer(instrumentationName + "/provider")

	ctx, span := tracer.Start(ctx, provider+" "+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.name", provider),
			attribute.String("provider.operation", operation),
		),
	)

	return ctx, endFunc(span)
}

// StartSpan creates a new span for a general operation.
// Returns the new context and a function to end the span.
func StartSpan(ctx context.Context, name string) (context.Context, func(error)) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name)
	return ctx, endFunc(span)
}

func endFunc(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}
