package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request id
	RequestIDKey contextKey = "request_id"
	// ProductIDKey is the context key for the product an operation works on
	ProductIDKey contextKey = "product_id"

	loggerKey contextKey = "logger"
)

// WithContext stores logger in ctx
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID records the request id in ctx and on the returned logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	return ctx, logger.With(zap.String("request_id", requestID))
}

// WithProductID records the product id in ctx and on the returned logger
func WithProductID(ctx context.Context, logger *zap.Logger, productID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, ProductIDKey, productID)
	return ctx, logger.With(zap.String("product_id", productID))
}

// GetRequestID retrieves the request id from ctx
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(RequestIDKey).(string)
	return s
}

// GetProductID retrieves the product id from ctx
func GetProductID(ctx context.Context) string {
	s, _ := ctx.Value(ProductIDKey).(string)
	return s
}

// WithTraceContext adds trace_id and span_id when ctx carries a valid span
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// L returns the context logger enriched with request, product and trace fields.
//
//	logger.L(ctx).Info("lot opened", zap.String("lot_number", lot.LotNumber))
func L(ctx context.Context) *zap.Logger {
	return Enrich(ctx, FromContext(ctx))
}

// Enrich adds the request, product and trace fields found in ctx to base
func Enrich(ctx context.Context, base *zap.Logger) *zap.Logger {
	l := WithTraceContext(ctx, base)
	var fields []zap.Field
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetProductID(ctx); id != "" {
		fields = append(fields, zap.String("product_id", id))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
