package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"budgetapp/internal/core"

	"github.com/shopspring/decimal"
)

// NewTransaction is the POST /transaction payload. Account and bucket are
// sent by name and id respectively, as the backend expects.
type NewTransaction struct {
	Date            string
	Description     string
	Bucket          string
	Account         string
	Amount          decimal.Decimal
	IncomeOrExpense core.TxKind
}

type newTransactionRequest struct {
	ID              string      `json:"id"`
	Date            string      `json:"date"`
	Description     string      `json:"description"`
	Bucket          string      `json:"bucket"`
	Account         string      `json:"account"`
	Amount          json.Number `json:"amount"`
	IncomeOrExpense string      `json:"incomeOrExpense"`
}

// ImportPreview is one row the backend parsed out of an uploaded file.
type ImportPreview struct {
	Date        string
	Description string
	Amount      decimal.Decimal
}

// ListTransactions fetches GET /transactions. A non-array body is treated
// as no transactions.
func (c *Client) ListTransactions(ctx context.Context, s Session) ([]core.Transaction, error) {
	v, err := c.call(ctx, s, http.MethodGet, "/transactions", nil)
	if err != nil {
		return nil, err
	}
	out := []core.Transaction{}
	for _, m := range objects(v) {
		out = append(out, toTransaction(m))
	}
	return out, nil
}

// CreateTransaction posts one record and returns the new id.
func (c *Client) CreateTransaction(ctx context.Context, s Session, t NewTransaction) (string, error) {
	v, err := c.call(ctx, s, http.MethodPost, "/transaction", newTransactionRequest{
		Date:            t.Date,
		Description:     t.Description,
		Bucket:          t.Bucket,
		Account:         t.Account,
		Amount:          json.Number(t.Amount.String()),
		IncomeOrExpense: string(t.IncomeOrExpense),
	})
	if err != nil {
		return "", err
	}
	return idOf(v), nil
}

// DeleteTransaction removes one record.
func (c *Client) DeleteTransaction(ctx context.Context, s Session, id string) error {
	_, err := c.call(ctx, s, http.MethodDelete, "/transaction/"+escape(id), nil)
	return err
}

// ImportTransactions uploads a statement as multipart field "file" and
// returns the preview rows for review. Nothing is saved yet.
func (c *Client) ImportTransactions(ctx context.Context, s Session, filename string, file io.Reader) ([]ImportPreview, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	resp, err := c.do(ctx, s, http.MethodPost, "/transactions/import", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	v, err := decodeLoose(resp.Body)
	if err != nil {
		return nil, err
	}
	var out []ImportPreview
	for _, m := range objects(v) {
		out = append(out, ImportPreview{
			Date:        str(m, "", "date"),
			Description: str(m, "", "description", "merchant"),
			Amount:      num(m, "amount"),
		})
	}
	return out, nil
}

func isUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
