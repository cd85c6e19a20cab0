package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of an APIError. Each category maps to one HTTP
// status.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnavailable     ErrorType = "service_unavailable"
)

var statusByType = map[ErrorType]int{
	ErrorTypeInvalidRequest:  http.StatusBadRequest,
	ErrorTypeNotFound:        http.StatusNotFound,
	ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	ErrorTypeUnavailable:     http.StatusServiceUnavailable,
	ErrorTypeModelError:      http.StatusBadGateway,
	ErrorTypeServerError:     http.StatusInternalServerError,
}

// APIError is the error body of every non-2xx finquery response. Model
// backends map their failures into it too, so a provider error keeps its
// category on the way out.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Status returns the HTTP status for the error's type. Unknown types are
// server errors.
func (e *APIError) Status() int {
	if s, ok := statusByType[e.Type]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrorResponse is the top-level {"error": ...} envelope.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// FromError returns the APIError wrapped in err, or a server error carrying
// err's text when there is none.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewServerError(err.Error())
}

func newError(t ErrorType, message string) *APIError {
	return &APIError{Type: t, Message: message}
}

// NewInvalidRequestError reports a bad request field.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(ErrorTypeInvalidRequest, message)
	e.Param = param
	return e
}

func NewNotFoundError(message string) *APIError { return newError(ErrorTypeNotFound, message) }

func NewServerError(message string) *APIError { return newError(ErrorTypeServerError, message) }

// NewModelError reports a failure of the model backend.
func NewModelError(message string) *APIError { return newError(ErrorTypeModelError, message) }

func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, message)
}

// NewUnavailableError reports a dependency that is not configured, such as
// a disabled history store.
func NewUnavailableError(message string) *APIError {
	return newError(ErrorTypeUnavailable, message)
}
