package http

import (
	"errors"
	"net/http"
	"strings"

	"budgetapp/internal/api"
	applog "budgetapp/internal/log"
)

const minPasswordLength = 6

type authView struct {
	Username   string
	Error      string
	Registered bool
}

// requireAuth checks the session with the backend on every request and
// puts the user in the context. Anything else is sent to /login.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := api.SessionFromRequest(r)
		if sess.Empty() {
			redirect(w, r, "/login")
			return
		}
		user, err := s.backend.Me(r.Context(), sess)
		if err != nil {
			s.fail(w, r, "auth", err)
			return
		}
		p := principal{User: user, Session: sess, Key: userKey(user, sess)}
		ctx := withPrincipal(r.Context(), p)
		l := applog.FromContext(ctx).With(applog.FieldUser, p.Key)
		next.ServeHTTP(w, r.WithContext(applog.NewContext(ctx, l)))
	})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "login", pageData{
		Title: "Sign in",
		Data:  authView{Registered: r.URL.Query().Get("registered") == "1"},
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	username := FormValue(r, "username")
	password := r.FormValue("password")

	view := authView{Username: username}
	if username == "" || password == "" {
		view.Error = "Enter your username and password."
		s.renderPage(w, r, http.StatusUnprocessableEntity, "login", pageData{Title: "Sign in", Data: view})
		return
	}

	cookies, err := s.backend.Login(r.Context(), username, password)
	if err != nil {
		status := http.StatusBadGateway
		view.Error = api.UserMessage(err)
		if errors.Is(err, api.ErrUnauthorized) {
			status = http.StatusUnauthorized
			view.Error = "Invalid username or password."
		}
		s.logger.WarnContext(r.Context(), "Login failed", applog.FieldUser, strings.ToLower(username), applog.FieldError, err)
		s.renderPage(w, r, status, "login", pageData{Title: "Sign in", Data: view})
		return
	}

	for _, c := range cookies {
		http.SetCookie(w, relayCookie(c, r))
	}
	s.logger.InfoContext(r.Context(), "User signed in", applog.FieldUser, strings.ToLower(username))
	redirect(w, r, "/dashboard")
}

// relayCookie copies a backend cookie onto our own origin.
func relayCookie(c *http.Cookie, r *http.Request) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     "/",
		Expires:  c.Expires,
		MaxAge:   c.MaxAge,
		HttpOnly: true,
		Secure:   c.Secure || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "register", pageData{Title: "Create account", Data: authView{}})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	username := FormValue(r, "username")
	password := r.FormValue("password")

	view := authView{Username: username}
	switch {
	case username == "":
		view.Error = "Username is required."
	case password == "":
		view.Error = "Password is required."
	case len(password) < minPasswordLength:
		view.Error = "Password must be at least 6 characters."
	}
	if view.Error != "" {
		s.renderPage(w, r, http.StatusUnprocessableEntity, "register", pageData{Title: "Create account", Data: view})
		return
	}

	if err := s.backend.Register(r.Context(), username, password); err != nil {
		status := http.StatusBadGateway
		var he *api.HTTPError
		if errors.As(err, &he) && he.Status < 500 {
			status = http.StatusUnprocessableEntity
		}
		view.Error = api.UserMessage(err)
		s.logger.WarnContext(r.Context(), "Registration failed", applog.FieldError, err)
		s.renderPage(w, r, status, "register", pageData{Title: "Create account", Data: view})
		return
	}
	redirect(w, r, "/login?registered=1")
}

// handleLogout ends the backend session and clears the relayed cookies.
// A backend that already forgot the session is fine.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := api.SessionFromRequest(r)
	if !sess.Empty() {
		if err := s.backend.Logout(r.Context(), sess); err != nil && !errors.Is(err, api.ErrUnauthorized) {
			s.logger.WarnContext(r.Context(), "Backend logout failed", applog.FieldError, err)
		}
		if s.state != nil {
			s.state.Forget(sess)
		}
	}
	for _, c := range sess.Cookies {
		http.SetCookie(w, &http.Cookie{Name: c.Name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	redirect(w, r, "/login")
}
