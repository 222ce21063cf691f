package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"budgetapp/internal/core"
	"budgetapp/internal/imports"
	"budgetapp/internal/settings"
	"budgetapp/internal/sheets"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRepository stores settings, income plans, staged import rows and
// the export log.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection, for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LoadSettings implements settings.Repository.
func (r *SQLiteRepository) LoadSettings(ctx context.Context, user string) (settings.Settings, bool, error) {
	var cats, accts string
	err := r.db.QueryRowContext(ctx,
		`SELECT categories, accounts FROM settings WHERE user_key = ?`, user).Scan(&cats, &accts)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Settings{}, false, nil
	}
	if err != nil {
		return settings.Settings{}, false, fmt.Errorf("query settings: %w", err)
	}

	var s settings.Settings
	if err := json.Unmarshal([]byte(cats), &s.Categories); err != nil {
		return settings.Settings{}, false, fmt.Errorf("decode categories: %w", err)
	}
	if err := json.Unmarshal([]byte(accts), &s.Accounts); err != nil {
		return settings.Settings{}, false, fmt.Errorf("decode accounts: %w", err)
	}
	return s, true, nil
}

// SaveSettings implements settings.Repository.
func (r *SQLiteRepository) SaveSettings(ctx context.Context, user string, s settings.Settings) error {
	cats, err := json.Marshal(nonNil(s.Categories))
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	accts, err := json.Marshal(nonNil(s.Accounts))
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settings (user_key, categories, accounts, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_key) DO UPDATE SET
			categories = excluded.categories,
			accounts = excluded.accounts,
			updated_at = CURRENT_TIMESTAMP`,
		user, string(cats), string(accts))
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// IncomePlan implements settings.Repository.
func (r *SQLiteRepository) IncomePlan(ctx context.Context, user, month string) (decimal.Decimal, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT amount FROM income_plans WHERE user_key = ? AND month = ?`, user, month).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("query income plan: %w", err)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("decode income plan %q: %w", raw, err)
	}
	return d, true, nil
}

// SaveIncomePlan implements settings.Repository. A zero amount removes
// the plan.
func (r *SQLiteRepository) SaveIncomePlan(ctx context.Context, user, month string, amount decimal.Decimal) error {
	if amount.IsZero() {
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM income_plans WHERE user_key = ? AND month = ?`, user, month); err != nil {
			return fmt.Errorf("delete income plan: %w", err)
		}
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO income_plans (user_key, month, amount, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_key, month) DO UPDATE SET
			amount = excluded.amount,
			updated_at = CURRENT_TIMESTAMP`,
		user, month, amount.String())
	if err != nil {
		return fmt.Errorf("upsert income plan: %w", err)
	}
	return nil
}

// InsertImportRows implements imports.Repository. All rows of a batch are
// written in one transaction.
func (r *SQLiteRepository) InsertImportRows(ctx context.Context, rows []imports.Row) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO import_rows
			(id, batch_id, user_key, position, date, description, amount, bucket, account, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.BatchID, row.User, row.Position, row.Date, row.Description,
			row.Amount.String(), row.Bucket, row.Account, string(row.Status), row.Error); err != nil {
			return fmt.Errorf("insert import row %d: %w", row.Position, err)
		}
	}
	return tx.Commit()
}

const importRowColumns = `id, batch_id, user_key, position, date, description, amount, bucket, account, status, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanImportRow(s scanner) (imports.Row, error) {
	var (
		row    imports.Row
		amount string
		status string
	)
	if err := s.Scan(&row.ID, &row.BatchID, &row.User, &row.Position, &row.Date, &row.Description,
		&amount, &row.Bucket, &row.Account, &status, &row.Error); err != nil {
		return imports.Row{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return imports.Row{}, fmt.Errorf("decode amount %q: %w", amount, err)
	}
	row.Amount = d
	row.Status = imports.Status(status)
	return row, nil
}

// ImportRow implements imports.Repository.
func (r *SQLiteRepository) ImportRow(ctx context.Context, user, id string) (imports.Row, error) {
	row, err := scanImportRow(r.db.QueryRowContext(ctx,
		`SELECT `+importRowColumns+` FROM import_rows WHERE user_key = ? AND id = ?`, user, id))
	if errors.Is(err, sql.ErrNoRows) {
		return imports.Row{}, fmt.Errorf("import row %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return imports.Row{}, fmt.Errorf("query import row: %w", err)
	}
	return row, nil
}

// ImportRows implements imports.Repository.
func (r *SQLiteRepository) ImportRows(ctx context.Context, user, batchID string) ([]imports.Row, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+importRowColumns+` FROM import_rows WHERE user_key = ? AND batch_id = ? ORDER BY position`,
		user, batchID)
	if err != nil {
		return nil, fmt.Errorf("query import rows: %w", err)
	}
	defer rows.Close()

	var out []imports.Row
	for rows.Next() {
		row, err := scanImportRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan import row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import rows: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("import batch %s: %w", batchID, core.ErrNotFound)
	}
	return out, nil
}

// UpdateImportRow implements imports.Repository.
func (r *SQLiteRepository) UpdateImportRow(ctx context.Context, row imports.Row) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE import_rows
		SET bucket = ?, account = ?, status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_key = ? AND id = ?`,
		row.Bucket, row.Account, string(row.Status), row.Error, row.User, row.ID)
	if err != nil {
		return fmt.Errorf("update import row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("import row %s: %w", row.ID, core.ErrNotFound)
	}
	return nil
}

// DeleteImportBatch implements imports.Repository.
func (r *SQLiteRepository) DeleteImportBatch(ctx context.Context, user, batchID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM import_rows WHERE user_key = ? AND batch_id = ?`, user, batchID)
	if err != nil {
		return 0, fmt.Errorf("delete import batch: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ExportRecorded reports the ref of a finished export job, if any.
func (r *SQLiteRepository) ExportRecorded(ctx context.Context, jobID string) (string, bool, error) {
	var ref string
	err := r.db.QueryRowContext(ctx, `SELECT ref FROM exports WHERE job_id = ?`, jobID).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query export: %w", err)
	}
	return ref, true, nil
}

// RecordExport stores a finished export. Recording the same job twice
// keeps the first record.
func (r *SQLiteRepository) RecordExport(ctx context.Context, rec sheets.ExportRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (job_id, user_key, title, row_count, ref, exported_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING`,
		rec.JobID.String(), rec.User, rec.Title, rec.RowCount, rec.Ref, rec.ExportedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

// RecentExports lists a user's exports, newest first.
func (r *SQLiteRepository) RecentExports(ctx context.Context, user string, limit int) ([]sheets.ExportRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, user_key, title, row_count, ref, exported_at
		FROM exports WHERE user_key = ?
		ORDER BY exported_at DESC LIMIT ?`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var out []sheets.ExportRecord
	for rows.Next() {
		var (
			rec   sheets.ExportRecord
			jobID string
		)
		if err := rows.Scan(&jobID, &rec.User, &rec.Title, &rec.RowCount, &rec.Ref, &rec.ExportedAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		if rec.JobID, err = uuid.Parse(jobID); err != nil {
			return nil, fmt.Errorf("decode export id %q: %w", jobID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
