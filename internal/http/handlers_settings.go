package http

import (
	"context"
	"errors"
	"net/http"

	"budgetapp/internal/api"
	"budgetapp/internal/core"
	applog "budgetapp/internal/log"
	"budgetapp/internal/settings"
	"budgetapp/internal/sheets"
	"budgetapp/internal/state"

	"github.com/shopspring/decimal"
)

const recentExportsLimit = 10

type settingsView struct {
	Settings      settings.Settings
	Error         string
	Exports       []sheets.ExportRecord
	ExportEnabled bool
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)

	st, err := s.settings.Load(ctx, p.Key)
	if err != nil {
		s.internalError(w, r, applog.OpRead, err)
		return
	}
	view := settingsView{Settings: st, ExportEnabled: s.ExportEnabled()}
	if s.history != nil {
		if view.Exports, err = s.history.RecentExports(ctx, p.Key, recentExportsLimit); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Export history unavailable", applog.FieldError, err)
		}
	}
	s.renderPage(w, r, http.StatusOK, "settings", pageData{Title: "Settings", Nav: "settings", Data: view})
}

// accountCreator creates a settings account chip's backend account as an
// empty debit account.
func (s *Server) accountCreator(p principal) settings.AccountCreator {
	return settings.AccountCreatorFunc(func(ctx context.Context, name string) error {
		if _, err := s.backend.CreateAccount(ctx, p.Session, core.Account{Name: name, Kind: core.Debit, Balance: decimal.Zero}); err != nil {
			return err
		}
		s.state.Invalidate(p.Session, state.ScopeAccounts)
		return nil
	})
}

// execute runs a settings command and answers with the chips as they
// now stand. A rejected remote commit answers with the rolled back
// chips and the backend's message.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmd settings.Command, success string) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	p := mustPrincipal(r)

	st, err := s.settings.Execute(ctx, p.Key, cmd)
	switch {
	case err == nil:
	case errors.Is(err, settings.ErrEmptyValue), errors.Is(err, settings.ErrDuplicate), errors.Is(err, settings.ErrMissing):
		s.writeSettings(w, r, http.StatusUnprocessableEntity, settingsView{Settings: st, Error: sentence(err)}, nil)
		return
	case errors.Is(err, api.ErrUnauthorized):
		s.fail(w, r, applog.OpUpdate, err)
		return
	default:
		s.structured.LogError(ctx, "Settings change failed", err, applog.ComponentSettings, applog.OpUpdate,
			applog.NewFields().WithRequestID(requestID(r)))
		msg := api.UserMessage(err)
		s.writeSettings(w, r, http.StatusBadGateway, settingsView{Settings: st, Error: msg}, func(b *HTMXResponseBuilder) {
			b.TriggerErrorNotification(msg)
		})
		return
	}
	s.writeSettings(w, r, http.StatusOK, settingsView{Settings: st}, func(b *HTMXResponseBuilder) {
		b.TriggerSettingsChanged().TriggerSuccessNotification(success)
	})
}

func (s *Server) writeSettings(w http.ResponseWriter, r *http.Request, status int, view settingsView, decorate func(*HTMXResponseBuilder)) {
	if !isHTMX(r) {
		if status >= 400 {
			s.writeError(w, r, status, view.Error)
			return
		}
		http.Redirect(w, r, "/settings", http.StatusSeeOther)
		return
	}
	s.writePartial(w, r, status, "settings_chips", view, decorate)
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, settings.AddCategory{Name: FormValue(r, "name")}, "Category added.")
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, settings.RemoveCategory{Name: FormValue(r, "name")}, "Category removed.")
}

func (s *Server) handleAddAccountChip(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	s.execute(w, r, settings.AddAccount{Name: FormValue(r, "name"), Creator: s.accountCreator(p)}, "Account added.")
}

func (s *Server) handleRemoveAccountChip(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, settings.RemoveAccount{Name: FormValue(r, "name")}, "Account removed.")
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := mustPrincipal(r)
	st, err := s.settings.Reset(ctx, p.Key)
	if err != nil {
		s.internalError(w, r, applog.OpUpdate, err)
		return
	}
	s.writeSettings(w, r, http.StatusOK, settingsView{Settings: st}, func(b *HTMXResponseBuilder) {
		b.TriggerSettingsChanged().TriggerSuccessNotification("Settings restored to defaults.")
	})
}
