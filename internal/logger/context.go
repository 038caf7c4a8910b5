package logger

import (
	"context"

	"go.uber.org/zap"
)

type requestLoggerKey struct{}

var nop = zap.NewNop()

// Into returns a copy of ctx that carries l.
func Into(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey{}, l)
}

// FromContext returns the logger stored by Into, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(requestLoggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return nop
}

// WithFields returns a copy of ctx whose logger also carries fields.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return Into(ctx, FromContext(ctx).With(fields...))
}
