package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"budgetapp/internal/core"
	applog "budgetapp/internal/log"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Shared templates every page is parsed with.
var baseTemplates = []string{"templates/layout.html", "templates/partials.html"}

// templateSet holds one template tree per page, each a clone of the
// shared layout and partials.
type templateSet struct {
	pages    map[string]*template.Template
	partials *template.Template
}

var titleCaser = cases.Title(language.English)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"cad":        core.FormatCAD,
		"monthLabel": core.MonthLabel,
		"date":       core.FormatDate,
		"fixed":      func(d decimal.Decimal) string { return d.StringFixed(2) },
		"abs":        func(d decimal.Decimal) decimal.Decimal { return d.Abs() },
		"negative":   func(d decimal.Decimal) bool { return d.IsNegative() },
		"positive":   func(d decimal.Decimal) bool { return d.IsPositive() },
		"pct":        func(x float64) string { return fmt.Sprintf("%.0f", core.ClampPct(x)) },
		"badge": func(v any) string {
			return titleCaser.String(strings.ToLower(fmt.Sprint(v)))
		},
	}
}

func parseTemplates(fsys fs.FS) (*templateSet, error) {
	partials, err := template.New("").Funcs(templateFuncs()).ParseFS(fsys, baseTemplates...)
	if err != nil {
		return nil, fmt.Errorf("parse base templates: %w", err)
	}
	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	set := &templateSet{pages: make(map[string]*template.Template), partials: partials}
	for _, f := range files {
		if f == baseTemplates[0] || f == baseTemplates[1] {
			continue
		}
		t, err := partials.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone templates for %s: %w", f, err)
		}
		if _, err := t.ParseFS(fsys, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		set.pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}
	return set, nil
}

// pageData is what the layout needs around every page.
type pageData struct {
	Title         string
	Nav           string
	User          string
	ExportEnabled bool
	Data          any
}

// renderPage executes the layout for page into a buffer first, so a
// template error never leaves half a page on the wire.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	t, ok := s.templates.pages[page]
	if !ok {
		s.logger.ErrorContext(r.Context(), "Unknown page template", "template", page)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	if p, ok := principalFrom(r.Context()); ok && data.User == "" {
		data.User = p.User.Username
	}
	data.ExportEnabled = s.ExportEnabled()

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.structured.LogError(r.Context(), "Page template execution failed", err, applog.ComponentTemplate, applog.OpRender,
			applog.NewFields().WithRequestID(requestID(r)))
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderPartial executes one shared partial into an HTMX response.
func (s *Server) renderPartial(r *http.Request, name string, data any) (*HTMXResponseBuilder, error) {
	if s.templates == nil {
		return nil, fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.partials.ExecuteTemplate(&buf, name, data); err != nil {
		s.structured.LogError(r.Context(), "Partial template execution failed", err, applog.ComponentTemplate, applog.OpRender,
			applog.NewFields().WithRequestID(requestID(r)))
		return nil, err
	}
	return NewHTMXResponse().BodyHTML(buf.String()), nil
}

// writePartial renders name and writes it, or an error fragment.
func (s *Server) writePartial(w http.ResponseWriter, r *http.Request, status int, name string, data any, decorate func(*HTMXResponseBuilder)) {
	resp, err := s.renderPartial(r, name, data)
	if err != nil {
		InternalServerError("Error rendering the page").Write(w)
		return
	}
	resp.Status(status)
	if decorate != nil {
		decorate(resp)
	}
	resp.Write(w)
}

type errorView struct {
	Status  int
	Message string
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.renderPage(w, r, status, "error", pageData{
		Title: http.StatusText(status),
		Data:  errorView{Status: status, Message: message},
	})
}
