// Package web holds the page templates and static assets, embedded so
// the binary runs without a checkout.
package web

import "embed"

// TemplatesFS embeds the layout, shared partials and one file per page.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and the notification script.
//
//go:embed static/*
var StaticFS embed.FS
