// Package http is the web front-end: pages, HTMX partials and the
// middleware stack in front of them.
package http

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"budgetapp/internal/api"
	"budgetapp/internal/budget"
	"budgetapp/internal/core"
	"budgetapp/internal/imports"
	applog "budgetapp/internal/log"
	"budgetapp/internal/middleware/ratelimit"
	"budgetapp/internal/middleware/security"
	"budgetapp/internal/middleware/trace"
	"budgetapp/internal/settings"
	"budgetapp/internal/sheets"
	"budgetapp/internal/state"
	appweb "budgetapp/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Backend is the part of the finance backend the handlers write to.
// Reads of accounts and transactions go through the state store.
type Backend interface {
	Me(ctx context.Context, s api.Session) (api.User, error)
	Login(ctx context.Context, username, password string) ([]*http.Cookie, error)
	Logout(ctx context.Context, s api.Session) error
	Register(ctx context.Context, username, password string) error
	Ping(ctx context.Context) error

	CreateAccount(ctx context.Context, s api.Session, a core.Account) (string, error)
	DeleteAccount(ctx context.Context, s api.Session, id string) error
	CreateBucket(ctx context.Context, s api.Session, accountID string, b core.Bucket) (string, error)

	CreateTransaction(ctx context.Context, s api.Session, t api.NewTransaction) (string, error)
	DeleteTransaction(ctx context.Context, s api.Session, id string) error
	ImportTransactions(ctx context.Context, s api.Session, filename string, file io.Reader) ([]api.ImportPreview, error)

	ListBudgetPeriods(ctx context.Context, s api.Session) ([]budget.Period, error)
	ListBudgets(ctx context.Context, s api.Session, period budget.Period) ([]budget.Rule, error)
	CreateBudget(ctx context.Context, s api.Session, r budget.Rule) (string, error)
	UpdateBudget(ctx context.Context, s api.Session, r budget.Rule) error
	DeleteBudget(ctx context.Context, s api.Session, id string) error
}

// Pinger is a dependency readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExportHistory lists finished exports.
type ExportHistory interface {
	RecentExports(ctx context.Context, user string, limit int) ([]sheets.ExportRecord, error)
}

// Options wires the server's collaborators.
type Options struct {
	Addr               string
	Backend            Backend
	State              *state.Store
	Settings           *settings.Service
	Imports            *imports.Service
	Exporter           sheets.TransactionExporter // nil hides export
	History            ExportHistory
	DB                 Pinger
	RateLimitPerMinute int
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	templates *templateSet

	backend  Backend
	state    *state.Store
	settings *settings.Service
	imports  *imports.Service
	exporter sheets.TransactionExporter
	history  ExportHistory
	db       Pinger

	logger     *applog.Logger
	structured *applog.StructuredLogger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	now          func() time.Time
	started      time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	httpLogger := logger.WithComponent(applog.ComponentHTTP)

	rlCfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlCfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		backend:          opts.Backend,
		state:            opts.State,
		settings:         opts.Settings,
		imports:          opts.Imports,
		exporter:         opts.Exporter,
		history:          opts.History,
		db:               opts.DB,
		logger:           httpLogger,
		structured:       applog.NewStructuredLogger(logger),
		securityDetector: security.NewDetector(logger),
		rateLimiter:      ratelimit.NewLimiter(rlCfg),
		now:              time.Now,
		started:          time.Now(),
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)

	t, err := parseTemplates(appweb.TemplatesFS)
	if err != nil {
		logger.WithComponent(applog.ComponentTemplate).Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(applog.Middleware(s.logger, trace.GetRequestID))
	r.Use(s.securityDetector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(middleware.Compress(5))
	r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.rateLimited))

	r.NotFound(s.handleNotFound)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)
		r.Get("/register", s.handleRegisterPage)
		r.Post("/register", s.handleRegister)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.requireAuth)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
		r.Get("/dashboard", s.handleDashboard)

		r.Get("/accounts", s.handleAccounts)
		r.Post("/accounts", s.handleCreateAccount)
		r.Post("/accounts/{id}/buckets", s.handleCreateBucket)
		r.Post("/accounts/{id}/delete", s.handleDeleteAccount)

		r.Get("/transactions", s.handleTransactions)
		r.Post("/transactions", s.handleSubmitTransaction)
		r.Post("/transactions/{id}/delete", s.handleDeleteTransaction)
		r.Post("/transactions/import", s.handleImportUpload)
		r.Post("/transactions/export", s.handleExport)
		r.Get("/ui/transactions", s.handleTransactionsTable)
		r.Get("/ui/transactions/form", s.handleTransactionForm)

		r.Get("/imports/{batch}", s.handleImportReview)
		r.Post("/imports/{batch}/commit", s.handleImportCommitAll)
		r.Post("/imports/{batch}/discard", s.handleImportDiscard)
		r.Post("/imports/rows/{id}", s.handleImportRowUpdate)
		r.Post("/imports/rows/{id}/commit", s.handleImportRowCommit)

		r.Get("/budgets", s.handleBudgets)
		r.Post("/budgets", s.handleCreateBudget)
		r.Post("/budgets/income", s.handleSetIncomePlan)
		r.Post("/budgets/{id}", s.handleUpdateBudget)
		r.Post("/budgets/{id}/delete", s.handleDeleteBudget)

		r.Get("/settings", s.handleSettings)
		r.Post("/settings/categories", s.handleAddCategory)
		r.Post("/settings/categories/delete", s.handleRemoveCategory)
		r.Post("/settings/accounts", s.handleAddAccountChip)
		r.Post("/settings/accounts/delete", s.handleRemoveAccountChip)
		r.Post("/settings/reset", s.handleResetSettings)
	})

	return r
}

// ExportEnabled reports whether the export button is offered.
func (s *Server) ExportEnabled() bool { return s.exporter != nil }

// Shutdown stops the background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	resp := ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please wait a minute and try again.").
		Header("Retry-After", "60")
	if isHTMX(r) {
		resp.TriggerErrorNotification("Too many requests. Please wait a minute and try again.")
	}
	resp.Write(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NotFoundError("Not found").Write(w)
		return
	}
	s.renderError(w, r, http.StatusNotFound, "The page you asked for does not exist.")
}
