// Package transport holds the protocol-neutral pieces of the REST façade:
// the QueryRunner contract the HTTP adapter calls, a middleware chain
// around it, in-flight run tracking for shutdown, and API error encoding.
//
// Middleware wraps a QueryRunner the way net/http middleware wraps a
// Handler. The built-ins assign request IDs, log each run with log/slog,
// and turn panics into server errors so one bad run cannot take the
// server down.
package transport
