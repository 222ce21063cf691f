// Command oauth-init runs the OAuth consent flow once and writes the token
// file the export worker reads with GOOGLE_OAUTH_TOKEN_FILE.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"budgetapp/internal/cli"
	"budgetapp/internal/config"
	applog "budgetapp/internal/log"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, "oauth_init")

	if cfg.GoogleOAuthClientFile == "" {
		logger.Error("set GOOGLE_OAUTH_CLIENT_FILE")
		os.Exit(1)
	}
	b, err := os.ReadFile(cfg.GoogleOAuthClientFile)
	if err != nil {
		logger.Error("read client file", applog.FieldError, err)
		os.Exit(1)
	}
	oc, err := google.ConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		logger.Error("oauth config", applog.FieldError, err)
		os.Exit(1)
	}

	// The redirect URI must be registered on the OAuth client.
	redirectPort := os.Getenv("OAUTH_REDIRECT_PORT")
	if redirectPort == "" {
		redirectPort = "8085"
	}
	oc.RedirectURL = "http://localhost:" + redirectPort + "/callback"

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{Addr: ":" + redirectPort, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if errStr := r.URL.Query().Get("error"); errStr != "" {
			http.Error(w, "OAuth error: "+errStr, http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- r.URL.Query().Get("code"):
		default:
		}
	})
	go func() { _ = srv.ListenAndServe() }()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", oc.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	var code string
	select {
	case code = <-codeCh:
	case <-time.After(5 * time.Minute):
		logger.Error("authorization timed out")
		os.Exit(1)
	case <-ctx.Done():
		logger.Error("interrupted")
		os.Exit(1)
	}

	tok, err := oc.Exchange(context.Background(), code)
	if err != nil {
		logger.Error("token exchange", applog.FieldError, err)
		os.Exit(1)
	}

	outFile := cfg.GoogleOAuthTokenFile
	if outFile == "" {
		outFile = "token.json"
	}
	f, err := os.OpenFile(outFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		logger.Error("open token file", applog.FieldError, err)
		os.Exit(1)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		logger.Error("write token", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Saved token", applog.FieldPath, outFile)
}
