package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// User is the authenticated user reported by GET /auth/me.
type User struct {
	Username string
	Email    string
}

// Me checks the session. It returns ErrUnauthorized when there is none.
func (c *Client) Me(ctx context.Context, s Session) (User, error) {
	v, err := c.call(ctx, s, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return User{}, err
	}
	m, _ := v.(map[string]any)
	return User{
		Username: str(m, "", "username", "name", "email"),
		Email:    str(m, "", "email"),
	}, nil
}

// Login posts the credentials as a form and returns the cookies the
// backend set, for relaying to the browser.
func (c *Client) Login(ctx context.Context, username, password string) ([]*http.Cookie, error) {
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := c.do(ctx, Session{}, http.MethodPost, "/login",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return resp.Cookies(), nil
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context, s Session) error {
	_, err := c.call(ctx, s, http.MethodPost, "/logout", nil)
	return err
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a backend user.
func (c *Client) Register(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, Session{}, http.MethodPost, "/register", registerRequest{
		Username: username,
		Password: password,
	})
	return err
}

// Ping checks that the backend answers at all. Any HTTP status counts as
// reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+"/auth/me", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
