package api

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxQueryLength int
	MaxListLimit   int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxQueryLength: 4096,
		MaxListLimit:   100,
	}
}

// ValidateQueryRequest checks a QueryRequest. It returns an *APIError
// describing the first validation failure, or nil if the request is valid.
func ValidateQueryRequest(req *QueryRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Query) == "" {
		return NewInvalidRequestError("query", "query is required")
	}
	if !utf8.ValidString(req.Query) {
		return NewInvalidRequestError("query", "query must be valid UTF-8")
	}
	if cfg.MaxQueryLength > 0 && utf8.RuneCountInString(req.Query) > cfg.MaxQueryLength {
		return NewInvalidRequestError("query",
			fmt.Sprintf("query exceeds maximum of %d characters", cfg.MaxQueryLength))
	}
	return nil
}

// ValidateListLimit checks the limit query parameter of GET /runs.
func ValidateListLimit(limit int, cfg ValidationConfig) *APIError {
	if limit < 0 {
		return NewInvalidRequestError("limit", "limit must not be negative")
	}
	if cfg.MaxListLimit > 0 && limit > cfg.MaxListLimit {
		return NewInvalidRequestError("limit",
			fmt.Sprintf("limit exceeds maximum of %d", cfg.MaxListLimit))
	}
	return nil
}
