package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/finquery/pkg/api"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes {"error": apiErr} with the given status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, status int) {
	WriteJSON(w, status, api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status its type maps to.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, apiErr.Status())
}
