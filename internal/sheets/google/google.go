package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	applog "budgetapp/internal/log"
	ports "budgetapp/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var ErrNoCredentials = errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_OAUTH_CLIENT_FILE with GOOGLE_OAUTH_TOKEN_FILE)")

// Config selects the spreadsheet and the credentials used to reach it.
// Service account credentials win over OAuth client+token when both are set.
type Config struct {
	SpreadsheetID      string
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthTokenFile     string
}

// Client appends exports to tabs of one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *applog.Logger
}

var _ ports.TransactionExporter = (*Client)(nil)

// New builds a Sheets client from cfg.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSheets)

	opts, err := credentialOptions(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string, logger *applog.Logger) *Client {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, logger: logger}
}

func credentialOptions(ctx context.Context, cfg Config, logger *applog.Logger) ([]goption.ClientOption, error) {
	saJSON := strings.TrimSpace(cfg.ServiceAccountJSON)
	saFile := strings.TrimSpace(cfg.ServiceAccountFile)

	switch {
	case saJSON != "":
		logger.Debug("Using inline service account credentials")
		return []goption.ClientOption{
			goption.WithCredentialsJSON([]byte(saJSON)),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	case saFile != "":
		b, err := os.ReadFile(saFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		logger.Debug("Using service account file", applog.FieldPath, saFile)
		return []goption.ClientOption{
			goption.WithCredentialsJSON(b),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	case cfg.OAuthClientFile != "" && cfg.OAuthTokenFile != "":
		ts, err := oauthTokenSource(ctx, cfg.OAuthClientFile, cfg.OAuthTokenFile)
		if err != nil {
			return nil, err
		}
		logger.Debug("Using OAuth client token", applog.FieldPath, cfg.OAuthTokenFile)
		return []goption.ClientOption{goption.WithTokenSource(ts)}, nil
	default:
		return nil, ErrNoCredentials
	}
}

// oauthTokenSource reads the client secret and the token written by
// cmd/oauth-init. The returned source refreshes the token as needed.
func oauthTokenSource(ctx context.Context, clientFile, tokenFile string) (oauth2.TokenSource, error) {
	b, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	f, err := os.Open(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("open oauth token file: %w", err)
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	hc := newHTTPClientWithPooling()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	return cfg.TokenSource(ctx, &tok), nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Export writes the header and rows to the tab named by req.Title, creating
// the tab first when it does not exist. It returns the updated A1 range.
func (c *Client) Export(ctx context.Context, req ports.ExportRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	start := time.Now()
	if err := c.ensureTab(ctx, req.Title); err != nil {
		return "", err
	}

	vr := &gsheet.ValueRange{Values: req.Values()}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quoteTab(req.Title)+"!A1", vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %q: %w", req.Title, err)
	}

	ref := quoteTab(req.Title)
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.InfoContext(ctx, "Export appended",
		applog.FieldOperation, applog.OpExport,
		applog.FieldJobID, req.ID.String(),
		applog.FieldCount, len(req.Rows),
		applog.FieldSheetsRef, ref,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return ref, nil
}

func (c *Client) ensureTab(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	add := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, add).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %q: %w", title, err)
	}
	c.logger.InfoContext(ctx, "Created sheet tab", applog.FieldSheetsRef, title)
	return nil
}

// quoteTab renders a tab name for A1 notation.
func quoteTab(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
