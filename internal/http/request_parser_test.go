package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"budgetapp/internal/ledger"
)

func TestMonthParam(t *testing.T) {
	now := time.Date(2025, 12, 15, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		values url.Values
		want   string
	}{
		{"valid", url.Values{"month": {"2025-03"}}, "2025-03"},
		{"missing", url.Values{}, "2025-12"},
		{"malformed", url.Values{"month": {"2025-13"}}, "2025-12"},
		{"padded", url.Values{"month": {" 2024-01 "}}, "2024-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthParam(tt.values, "month", now); got != tt.want {
				t.Errorf("MonthParam() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFilterRoundTrip(t *testing.T) {
	values := url.Values{
		"q":        {"  coffee "},
		"category": {"Dining"},
		"account":  {"All"},
		"month":    {"2025-12"},
	}
	f := ParseFilter(values)
	want := ledger.Filter{Query: "coffee", Category: "Dining", Account: "All", Month: "2025-12"}
	if f != want {
		t.Fatalf("ParseFilter() = %+v, want %+v", f, want)
	}

	back := FilterValues(f)
	if back.Get("q") != "coffee" || back.Get("category") != "Dining" || back.Get("month") != "2025-12" {
		t.Errorf("FilterValues() = %v", back)
	}
	if _, ok := back["account"]; ok {
		t.Errorf("All should be left out: %v", back)
	}
}

func TestFormValueSanitizes(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=%20Rent%00%07%20"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if got := FormValue(req, "name"); got != "Rent" {
		t.Errorf("FormValue() = %q, want %q", got, "Rent")
	}
}

func TestParseFormOrFail(t *testing.T) {
	t.Run("valid form", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("key=value"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if result := ParseFormOrFail(req); result != nil {
			t.Error("ParseFormOrFail should return nil for valid form")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("key=%zz"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		result := ParseFormOrFail(req)
		if result == nil {
			t.Fatal("expected an error response")
		}
		w := httptest.NewRecorder()
		result.Write(w)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
}
