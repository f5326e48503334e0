package httpapi

import (
	"net/http"

	"artifyd/pkg/types"
)

// HTTPError lets a Service error choose its own status code. The message
// is sent to the client verbatim.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}
