package filmbuddy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// genericFailure is shown when a failed action carries no server detail.
const genericFailure = "Request failed, please try again"

// APIError is a non-2xx response. Detail holds the server's human-readable
// reason when the body carried one.
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Status)
}

// Reason returns the text to show the user for a failed action: the server
// detail verbatim when present, otherwise a generic fallback.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return genericFailure
}

// parseDetail extracts {"detail": "..."} from an error body verbatim,
// falling back to the trimmed body text when it is not JSON.
func parseDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return trimmed
	}
	if len(payload.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err == nil {
		return detail
	}
	// Validation errors carry a structured detail; show it raw.
	return string(payload.Detail)
}
