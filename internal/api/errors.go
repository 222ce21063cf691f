package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned for 401 and 403 responses. Callers redirect
// to the login page instead of rendering content.
var ErrUnauthorized = errors.New("not authenticated")

// HTTPError is any other non-2xx backend response.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message())
}

// Message is the text shown to the user: the backend body when there is
// one, the status otherwise.
func (e *HTTPError) Message() string {
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return msg
	}
	return fmt.Sprintf("Request failed (HTTP %d)", e.Status)
}

// UserMessage turns any client error into a short user-facing string.
func UserMessage(err error) string {
	var he *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.As(err, &he):
		return he.Message()
	default:
		return "Could not reach the server. Please try again."
	}
}

func statusError(method, path string, status int, body string) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	return &HTTPError{Method: method, Path: path, Status: status, Body: body}
}
