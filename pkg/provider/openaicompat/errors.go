package openaicompat

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rhuss/finquery/pkg/api"
	"github.com/rhuss/finquery/pkg/provider"
)

// MapHTTPError converts an HTTP response with a non-2xx status code into
// an APIError, using the backend's error message when it can be parsed.
func MapHTTPError(resp *http.Response) *api.APIError {
	return provider.MapStatus(resp.StatusCode, ExtractErrorMessage(resp.Body))
}

// ExtractErrorMessage tries to parse the response body as a ChatErrorResponse
// and returns the error message if found.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
