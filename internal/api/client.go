// Package api is the client for the finance backend.
//
// Every call forwards the browser's session cookies, so the backend sees
// the same user the browser authenticated as. Responses are decoded
// loosely and normalized, see normalize.go.
package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"budgetapp/internal/log"
)

const maxErrorBody = 4 << 10

// Session carries the cookies the browser sent us.
type Session struct {
	Cookies []*http.Cookie
}

// SessionFromRequest copies the request cookies.
func SessionFromRequest(r *http.Request) Session {
	return Session{Cookies: r.Cookies()}
}

// Key identifies the session for per-session caches. It is a hash so the
// raw cookie values never end up in logs or map dumps.
func (s Session) Key() string {
	parts := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:12])
}

// Empty reports whether the browser sent no cookies at all.
func (s Session) Empty() bool { return len(s.Cookies) == 0 }

type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *log.Logger
}

// New creates a client for the backend at baseURL.
func New(baseURL string, timeout time.Duration, logger *log.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse backend url: unsupported scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Client{
		baseURL: u,
		http: &http.Client{
			Timeout: timeout,
			// Redirects from the backend (e.g. to its own login page) are
			// answers, not something to follow.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		logger: logger.WithComponent(log.ComponentBackend),
	}, nil
}

// do sends a request and returns the successful response. Non-2xx
// responses are consumed and turned into errors.
func (c *Client) do(ctx context.Context, s Session, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	target := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range s.Cookies {
		req.AddCookie(&http.Cookie{Name: ck.Name, Value: ck.Value})
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Backend request failed",
			log.FieldMethod, method, log.FieldPath, path, log.FieldError, err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.DebugContext(ctx, "Backend request completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(method, path, resp.StatusCode, string(b))
	}
	return resp, nil
}

// call runs a request and decodes the JSON body loosely. An empty body
// decodes to nil.
func (c *Client) call(ctx context.Context, s Session, method, path string, payload any) (any, error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	resp, err := c.do(ctx, s, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return decodeLoose(resp.Body)
}

func decodeLoose(r io.Reader) (any, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		// Some endpoints answer with plain text ids or messages.
		return strings.TrimSpace(string(raw)), nil
	}
	return v, nil
}

func escape(id string) string { return url.PathEscape(id) }
