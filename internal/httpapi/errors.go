package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"patchscope/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusOf maps err to a response status; errors without one are 500.
func statusOf(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSON wraps data in the success envelope.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.SuccessResponse{Success: true, Data: data})
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeError maps a service error to its status and logs it. Nothing is
// written when the client or the server already gave up on the request.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if aborted(r.Context()) {
		return
	}
	status := statusOf(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("admission")
	}
	if requestLogLevel(r) >= LevelError {
		z := logger().Warn()
		if status >= http.StatusInternalServerError {
			z = logger().Error()
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Str("path", r.URL.Path).Int("status", status).Err(err).Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
}
