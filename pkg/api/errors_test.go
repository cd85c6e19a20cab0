package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAPIErrorInterface(t *testing.T) {
	var _ error = &APIError{}
}

func TestAPIErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{
			"with param",
			&APIError{Type: ErrorTypeInvalidRequest, Param: "query", Message: "is required"},
			"invalid_request: is required (param: query)",
		},
		{
			"without param",
			&APIError{Type: ErrorTypeServerError, Message: "internal failure"},
			"server_error: internal failure",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("APIError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *APIError
		wantType  ErrorType
		wantParam string
	}{
		{"invalid request", NewInvalidRequestError("query", "is required"), ErrorTypeInvalidRequest, "query"},
		{"not found", NewNotFoundError("run not found"), ErrorTypeNotFound, ""},
		{"server error", NewServerError("internal failure"), ErrorTypeServerError, ""},
		{"model error", NewModelError("model overloaded"), ErrorTypeModelError, ""},
		{"too many requests", NewTooManyRequestsError("rate limit exceeded"), ErrorTypeTooManyRequests, ""},
		{"unavailable", NewUnavailableError("history disabled"), ErrorTypeUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", tt.err.Type, tt.wantType)
			}
			if tt.err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", tt.err.Param, tt.wantParam)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  *APIError
		want int
	}{
		{NewInvalidRequestError("query", "x"), http.StatusBadRequest},
		{NewNotFoundError("x"), http.StatusNotFound},
		{NewTooManyRequestsError("x"), http.StatusTooManyRequests},
		{NewUnavailableError("x"), http.StatusServiceUnavailable},
		{NewModelError("x"), http.StatusBadGateway},
		{NewServerError("x"), http.StatusInternalServerError},
		{&APIError{Type: "teapot"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.Status(); got != tt.want {
			t.Errorf("%s: Status() = %d, want %d", tt.err.Type, got, tt.want)
		}
	}
}

func TestFromError(t *testing.T) {
	model := NewModelError("overloaded")
	if got := FromError(fmt.Errorf("coder stage: %w", model)); got != model {
		t.Errorf("FromError(wrapped) = %v, want the wrapped error", got)
	}

	got := FromError(errors.New("dial tcp: refused"))
	if got.Type != ErrorTypeServerError || got.Message != "dial tcp: refused" {
		t.Errorf("FromError(plain) = %+v", got)
	}
}

func TestAPIErrorOmitEmpty(t *testing.T) {
	err := &APIError{Type: ErrorTypeServerError, Message: "fail"}
	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("Marshal: %v", marshalErr)
	}

	var m map[string]interface{}
	if unmarshalErr := json.Unmarshal(data, &m); unmarshalErr != nil {
		t.Fatalf("Unmarshal: %v", unmarshalErr)
	}

	if _, ok := m["code"]; ok {
		t.Error("empty code should be omitted from JSON")
	}
	if _, ok := m["param"]; ok {
		t.Error("empty param should be omitted from JSON")
	}
}
