package transport

import "context"

// Middleware wraps a QueryRunner.
type Middleware func(QueryRunner) QueryRunner

// Chain composes middleware so that Chain(a, b)(r) is a(b(r)).
func Chain(middlewares ...Middleware) Middleware {
	return func(next QueryRunner) QueryRunner {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ContextWithRequestID stores id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}
