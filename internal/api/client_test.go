package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"budgetapp/internal/budget"
	"budgetapp/internal/core"
	"budgetapp/internal/log"

	"github.com/shopspring/decimal"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, 5*time.Second, log.Discard())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func session() Session {
	return Session{Cookies: []*http.Cookie{{Name: "JSESSIONID", Value: "abc"}}}
}

func TestNew_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"ftp://example.com", "localhost:8081", "://bad"} {
		if _, err := New(raw, time.Second, log.Discard()); err == nil {
			t.Errorf("New(%q) expected error", raw)
		}
	}
}

func TestSessionKey(t *testing.T) {
	a := Session{Cookies: []*http.Cookie{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}}}
	b := Session{Cookies: []*http.Cookie{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}}}
	c := Session{Cookies: []*http.Cookie{{Name: "a", Value: "9"}}}

	if a.Key() != b.Key() {
		t.Error("cookie order should not change the key")
	}
	if a.Key() == c.Key() {
		t.Error("different cookies should give different keys")
	}
	if len(a.Key()) != 24 || strings.Contains(a.Key(), "a=1") {
		t.Errorf("unexpected key %q", a.Key())
	}
	if !(Session{}).Empty() || a.Empty() {
		t.Error("Empty() mismatch")
	}
}

func TestCookiesAreForwarded(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("JSESSIONID")
		if err == nil {
			got = ck.Value
		}
		w.Write([]byte(`[]`))
	}))

	if _, err := c.ListAccounts(context.Background(), session()); err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if got != "abc" {
		t.Errorf("backend saw cookie %q, want abc", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantAuth bool
		wantMsg  string
	}{
		{"unauthorized", http.StatusUnauthorized, "", true, "Your session has expired. Please sign in again."},
		{"forbidden", http.StatusForbidden, "nope", true, "Your session has expired. Please sign in again."},
		{"bad request with body", http.StatusBadRequest, "Bucket name taken", false, "Bucket name taken"},
		{"server error without body", http.StatusInternalServerError, "", false, "Request failed (HTTP 500)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			_, err := c.ListTransactions(context.Background(), session())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnauthorized); got != tt.wantAuth {
				t.Errorf("errors.Is(ErrUnauthorized) = %v, want %v", got, tt.wantAuth)
			}
			if got := UserMessage(err); got != tt.wantMsg {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestTransportErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, time.Second, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListAccounts(context.Background(), session())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if got := UserMessage(err); got != "Could not reach the server. Please try again." {
		t.Errorf("UserMessage() = %q", got)
	}
}

func TestListTransactions_NonArrayIsEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"nothing here"}`))
	}))
	txs, err := c.ListTransactions(context.Background(), session())
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if txs == nil || len(txs) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", txs)
	}
}

func TestCreateTransactionPayload(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transaction" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"id": 42}`))
	}))

	id, err := c.CreateTransaction(context.Background(), session(), NewTransaction{
		Date:            "2025-12-05",
		Description:     "Coffee",
		Bucket:          "-1",
		Account:         "TD Chequing",
		Amount:          decimal.RequireFromString("-4.50"),
		IncomeOrExpense: core.Expense,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q, want 42", id)
	}
	if body["amount"] != -4.5 {
		t.Errorf("amount = %v, want -4.5", body["amount"])
	}
	if body["incomeOrExpense"] != "EXPENSE" || body["bucket"] != "-1" || body["account"] != "TD Chequing" {
		t.Errorf("unexpected payload %v", body)
	}
	if body["id"] != "" {
		t.Errorf("id = %v, want empty on create", body["id"])
	}
}

func TestDeleteEscapesID(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}))
	if err := c.DeleteTransaction(context.Background(), session(), "a/b"); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if path != "/transaction/a%2Fb" {
		t.Errorf("path = %q", path)
	}
}

func TestImportTransactionsMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "dec.csv" || string(data) != "csv-bytes" {
			t.Errorf("got %q %q", hdr.Filename, data)
		}
		w.Write([]byte(`[{"date":"2025-12-01","description":"Loblaws","amount":"-84.22"},{"date":"2025-12-02","merchant":"Payroll","amount":2100}]`))
	}))

	rows, err := c.ImportTransactions(context.Background(), session(), "dec.csv", strings.NewReader("csv-bytes"))
	if err != nil {
		t.Fatalf("ImportTransactions() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Description != "Loblaws" || !rows[0].Amount.Equal(decimal.RequireFromString("-84.22")) {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Description != "Payroll" || !rows[1].Amount.Equal(decimal.NewFromInt(2100)) {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestBudgetRoundTrip(t *testing.T) {
	var created, patched map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /budget-periods", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":2,"startDate":"2026-01-01"},{"id":1,"startDate":"2025-12-01","endDate":"2025-12-31"}]`))
	})
	mux.HandleFunc("GET /budgets/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":7,"name":"Groceries","planned":"20","valueType":"PERCENT","releaseRule":"LINEAR"}]`))
	})
	mux.HandleFunc("POST /budget", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&created)
		w.Write([]byte(`{"budgetId":"8"}`))
	})
	mux.HandleFunc("PATCH /api/budgets/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&patched)
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	periods, err := c.ListBudgetPeriods(ctx, session())
	if err != nil {
		t.Fatalf("ListBudgetPeriods() error = %v", err)
	}
	if len(periods) != 2 || periods[0].ID != 1 || periods[0].Month() != "2025-12" {
		t.Fatalf("periods = %+v", periods)
	}

	rules, err := c.ListBudgets(ctx, session(), periods[0])
	if err != nil {
		t.Fatalf("ListBudgets() error = %v", err)
	}
	want := budget.Rule{ID: "7", PeriodID: 1, Month: "2025-12", Category: "Groceries", Type: budget.Percent, Value: decimal.NewFromInt(20), Release: budget.Linear}
	if len(rules) != 1 || rules[0].ID != want.ID || rules[0].Month != want.Month || rules[0].Category != want.Category ||
		rules[0].Type != want.Type || rules[0].Release != want.Release || !rules[0].Value.Equal(want.Value) {
		t.Fatalf("rules = %+v", rules)
	}

	id, err := c.CreateBudget(ctx, session(), budget.Rule{PeriodID: 1, Month: "2025-12", Category: "Dining", Type: budget.Fixed, Value: decimal.NewFromInt(150), Release: budget.NoPacing})
	if err != nil || id != "8" {
		t.Fatalf("CreateBudget() = %q, %v", id, err)
	}
	if created["type"] != "EXPENSE" || created["name"] != "Dining" || created["planned"] != float64(150) ||
		created["ruleType"] != "FIXED" || created["releaseRule"] != "NONE" || created["budgetPeriodId"] != float64(1) {
		t.Errorf("create payload = %v", created)
	}

	rules[0].Value = decimal.NewFromInt(25)
	if err := c.UpdateBudget(ctx, session(), rules[0]); err != nil {
		t.Fatalf("UpdateBudget() error = %v", err)
	}
	if patched["planned"] != float64(25) || patched["ruleType"] != "PERCENT" {
		t.Errorf("patch payload = %v", patched)
	}
	if _, ok := patched["name"]; ok {
		t.Error("patch should not rename the budget")
	}
}

func TestLoginRelaysCookies(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("username") != "ana" || r.PostForm.Get("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "s1", Path: "/"})
		w.WriteHeader(http.StatusOK)
	}))

	cookies, err := c.Login(context.Background(), "ana", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if len(cookies) != 1 || cookies[0].Value != "s1" {
		t.Errorf("cookies = %v", cookies)
	}

	if _, err := c.Login(context.Background(), "ana", "bad"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("bad password error = %v, want ErrUnauthorized", err)
	}
}

func TestLoadAccountsWithBuckets_IsolatesFailures(t *testing.T) {
	var creditFetched atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bankaccounts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"a","name":"Chequing","creditOrDebit":"DEBIT","balance":1000},
			{"id":"b","name":"Savings","creditOrDebit":"DEBIT","balance":"50"},
			{"id":"c","name":"Visa","creditOrDebit":"CREDIT","balance":-200}
		]`))
	})
	mux.HandleFunc("GET /bankaccount/a/buckets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"1","name":"Emergency","balance":300},{"bucketId":"2","bucketName":"Travel","balance":"200"}]`))
	})
	mux.HandleFunc("GET /bankaccount/b/buckets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /bankaccount/c/buckets", func(w http.ResponseWriter, r *http.Request) {
		creditFetched.Store(true)
		w.Write([]byte(`[]`))
	})
	c := newTestClient(t, mux)

	accounts, buckets, err := c.LoadAccountsWithBuckets(context.Background(), session(), 2)
	if err != nil {
		t.Fatalf("LoadAccountsWithBuckets() error = %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("accounts = %d", len(accounts))
	}
	if got := buckets["a"]; len(got) != 2 || got[1].Name != "Travel" || got[1].BankAccountID != "a" {
		t.Errorf("buckets[a] = %+v", got)
	}
	if got, ok := buckets["b"]; !ok || len(got) != 0 {
		t.Errorf("buckets[b] = %+v, %v; want empty", got, ok)
	}
	if creditFetched.Load() {
		t.Error("credit account buckets should not be fetched")
	}
}

func TestLoadAccountsWithBuckets_AuthAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bankaccounts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"a","name":"Chequing"}]`))
	})
	mux.HandleFunc("GET /bankaccount/a/buckets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, mux)

	_, _, err := c.LoadAccountsWithBuckets(context.Background(), session(), 0)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
}
