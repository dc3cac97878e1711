package core

import (
	"context"
	"errors"
	"net/http"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-stack/pkg/codec"
	"github.com/joeydtaylor/steeze-stack/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
)

// StatusError attaches an HTTP status to an error punted down the stack.
// A zero Status defers to the wrapped error.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

// StatusOf maps a dispatch error to an HTTP status.
func StatusOf(err error) int {
	var se *StatusError
	var le *stack.LookupError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &se) && se.Status > 0:
		return se.Status
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrNoRelay):
		return http.StatusBadGateway
	case errors.As(err, &le):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as an ErrorBody. Server errors are not echoed to
// the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	body := ErrorBody{Error: msg, Status: status}
	if r != nil {
		body.RequestID = chimd.GetReqID(r.Context())
	}
	b, mErr := codec.JSONStrict.Marshal(body)
	if mErr != nil {
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, b, status)
}

func writeJSON(w http.ResponseWriter, payload []byte, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(payload) > 0 {
		_, _ = w.Write(payload)
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func statusIf(s, def int) int {
	if s > 0 {
		return s
	}
	return def
}
