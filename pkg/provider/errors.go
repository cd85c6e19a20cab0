package provider

import (
	"fmt"
	"net/http"

	"github.com/rhuss/finquery/pkg/api"
)

// statusOverloaded is Anthropic's "overloaded" status.
const statusOverloaded = 529

type statusMapping struct {
	newErr   func(string) *api.APIError
	fallback string
}

var statusMappings = map[int]statusMapping{
	http.StatusBadRequest: {
		func(m string) *api.APIError { return api.NewInvalidRequestError("", m) },
		"invalid request to backend",
	},
	http.StatusUnauthorized:    {api.NewServerError, "backend authentication failed"},
	http.StatusForbidden:       {api.NewServerError, "backend authentication failed"},
	http.StatusNotFound:        {api.NewNotFoundError, "backend resource not found"},
	http.StatusTooManyRequests: {api.NewTooManyRequestsError, "backend rate limit exceeded"},
	statusOverloaded:           {api.NewModelError, "backend overloaded"},
}

// MapStatus converts a non-2xx backend status into an APIError. message is
// the backend's own error text, if it could be extracted.
func MapStatus(status int, message string) *api.APIError {
	m, ok := statusMappings[status]
	if !ok {
		m = statusMapping{api.NewServerError, fmt.Sprintf("unexpected backend error (HTTP %d)", status)}
		if status >= http.StatusInternalServerError {
			m.fallback = fmt.Sprintf("backend server error (HTTP %d)", status)
		}
	}
	if message == "" {
		message = m.fallback
	}
	return m.newErr(message)
}

// MapNetworkError converts a transport failure (refused connection, timeout,
// DNS) into an APIError.
func MapNetworkError(err error) *api.APIError {
	return api.NewServerError("backend connection error: " + err.Error())
}
