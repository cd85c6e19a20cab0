// Package api defines the wire types of the finquery REST façade.
//
// It provides the request and response bodies for query execution, run
// history and health reporting, the structured error taxonomy used at the
// HTTP boundary, request validation, and run ID generation.
//
// Core types:
//   - [QueryRequest] / [QueryResponse]: one pipeline run over HTTP
//   - [DebugInfo]: per-stage artifacts returned when include_debug is set
//   - [RunRecord]: a persisted run as returned by GET /runs/{id}
//   - [APIError]: structured error with type, code, param, and message
package api
