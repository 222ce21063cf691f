package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"budgetapp/internal/api"
	applog "budgetapp/internal/log"
	"budgetapp/internal/middleware/trace"
)

type contextKey int

const principalKey contextKey = iota

// principal is the signed-in user of a request, set by requireAuth.
type principal struct {
	User    api.User
	Session api.Session
	// Key scopes per-user local data (settings, income plans, imports).
	Key string
}

func withPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey).(principal)
	return p, ok
}

// mustPrincipal is for handlers behind requireAuth.
func mustPrincipal(r *http.Request) principal {
	p, _ := principalFrom(r.Context())
	return p
}

// userKey picks the local storage key for a backend user. Usernames are
// case-insensitive; a backend that reports no name falls back to the
// session hash.
func userKey(u api.User, s api.Session) string {
	if name := strings.ToLower(strings.TrimSpace(u.Username)); name != "" {
		return name
	}
	return "session:" + s.Key()
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func requestID(r *http.Request) string {
	return trace.GetRequestID(r.Context())
}

// redirect sends HTMX clients an HX-Redirect and everyone else a 303.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// fail turns a backend error into a response. Auth failures end the
// session and go to the login page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if errors.Is(err, api.ErrUnauthorized) {
		if p, ok := principalFrom(ctx); ok && s.state != nil {
			s.state.Forget(p.Session)
		}
		applog.FromContext(ctx).InfoContext(ctx, "Session rejected by backend, redirecting to login",
			applog.FieldOperation, op, applog.FieldPath, r.URL.Path)
		redirect(w, r, "/login")
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	status, msg := backendFailure(err)
	s.structured.LogError(ctx, "Backend request failed", err, applog.ComponentBackend, op,
		applog.NewFields().WithRequestID(requestID(r)))
	s.writeError(w, r, status, msg)
}

// backendFailure picks the status and user message for a backend error.
// Rejections (4xx) keep the backend's message; 5xx details stay in logs.
func backendFailure(err error) (int, string) {
	status, msg := http.StatusBadGateway, api.UserMessage(err)
	var he *api.HTTPError
	if errors.As(err, &he) {
		if he.Status < 500 {
			status = http.StatusUnprocessableEntity
		} else {
			msg = "The server could not complete the request. Please try again."
		}
	}
	return status, msg
}

// internalError reports a local failure (storage, rendering) without
// leaking its details.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.structured.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op,
		applog.NewFields().WithRequestID(requestID(r)))
	s.writeError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

// writeError answers HTMX requests with an error fragment and a
// notification, full page loads with the error page.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if isHTMX(r) {
		ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	s.renderError(w, r, status, msg)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// invalid answers a rejected form with 422 and a readable message.
func (s *Server) invalid(w http.ResponseWriter, r *http.Request, err error) {
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Validation failed",
		applog.FieldPath, r.URL.Path, applog.FieldError, err)
	msg := sentence(err)
	if isHTMX(r) {
		UnprocessableEntityError(msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	s.renderError(w, r, http.StatusUnprocessableEntity, msg)
}

// done finishes a successful mutation: HTMX gets resp, a plain form post
// is redirected to fallback.
func done(w http.ResponseWriter, r *http.Request, fallback string, resp *HTMXResponseBuilder) {
	if !isHTMX(r) {
		http.Redirect(w, r, fallback, http.StatusSeeOther)
		return
	}
	resp.Write(w)
}

// sentence turns an error into a message fit for a notification.
func sentence(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "Invalid input."
	}
	msg = strings.ToUpper(msg[:1]) + msg[1:]
	if !strings.HasSuffix(msg, ".") {
		msg += "."
	}
	return msg
}
