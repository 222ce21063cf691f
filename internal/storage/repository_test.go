package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"budgetapp/internal/core"
	"budgetapp/internal/imports"
	"budgetapp/internal/settings"
	"budgetapp/internal/sheets"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "test.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestMigrationsApplied(t *testing.T) {
	_, path := newTestRepo(t)

	v, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if v != 3 || dirty {
		t.Errorf("version = %d dirty = %v, want 3 clean", v, dirty)
	}
	if err := RunMigrations(path); err != nil {
		t.Errorf("second RunMigrations() error = %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	_, ok, err := repo.LoadSettings(ctx, "ana")
	if err != nil || ok {
		t.Fatalf("LoadSettings() on empty db = %v, %v", ok, err)
	}

	want := settings.Settings{Categories: []string{"Dining", "Rent"}, Accounts: []string{"Cash"}}
	if err := repo.SaveSettings(ctx, "ana", want); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	want.Accounts = nil
	if err := repo.SaveSettings(ctx, "ana", want); err != nil {
		t.Fatalf("SaveSettings() overwrite error = %v", err)
	}

	got, ok, err := repo.LoadSettings(ctx, "ana")
	if err != nil || !ok {
		t.Fatalf("LoadSettings() = %v, %v", ok, err)
	}
	if len(got.Categories) != 2 || got.Categories[1] != "Rent" || len(got.Accounts) != 0 {
		t.Errorf("LoadSettings() = %+v", got)
	}
}

func TestIncomePlans(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	if err := repo.SaveIncomePlan(ctx, "ana", "2025-12", decimal.RequireFromString("4000.50")); err != nil {
		t.Fatalf("SaveIncomePlan() error = %v", err)
	}
	got, ok, err := repo.IncomePlan(ctx, "ana", "2025-12")
	if err != nil || !ok || !got.Equal(decimal.RequireFromString("4000.5")) {
		t.Errorf("IncomePlan() = %s, %v, %v", got, ok, err)
	}
	if _, ok, _ := repo.IncomePlan(ctx, "bob", "2025-12"); ok {
		t.Error("plans must be per user")
	}

	if err := repo.SaveIncomePlan(ctx, "ana", "2025-12", decimal.Zero); err != nil {
		t.Fatalf("SaveIncomePlan(0) error = %v", err)
	}
	if _, ok, _ := repo.IncomePlan(ctx, "ana", "2025-12"); ok {
		t.Error("zero should clear the plan")
	}
}

func TestImportRows(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	rows := []imports.Row{
		{ID: "r2", BatchID: "b1", User: "ana", Position: 1, Date: "2025-12-02", Description: "Pay", Amount: decimal.NewFromInt(2100), Status: imports.StatusNeedsInfo},
		{ID: "r1", BatchID: "b1", User: "ana", Position: 0, Date: "2025-12-01", Description: "Loblaws", Amount: decimal.RequireFromString("-84.22"), Bucket: "Groceries", Account: "TD", Status: imports.StatusReady},
	}
	if err := repo.InsertImportRows(ctx, rows); err != nil {
		t.Fatalf("InsertImportRows() error = %v", err)
	}

	got, err := repo.ImportRows(ctx, "ana", "b1")
	if err != nil {
		t.Fatalf("ImportRows() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "r1" || !got[0].Amount.Equal(decimal.RequireFromString("-84.22")) {
		t.Fatalf("ImportRows() = %+v", got)
	}

	if _, err := repo.ImportRow(ctx, "bob", "r1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("other user's row: err = %v, want ErrNotFound", err)
	}

	row := got[1]
	row.Bucket, row.Account, row.Status, row.Error = "Income", "TD", imports.StatusError, "boom"
	if err := repo.UpdateImportRow(ctx, row); err != nil {
		t.Fatalf("UpdateImportRow() error = %v", err)
	}
	back, err := repo.ImportRow(ctx, "ana", "r2")
	if err != nil || back.Status != imports.StatusError || back.Error != "boom" || back.Bucket != "Income" {
		t.Errorf("ImportRow() = %+v, %v", back, err)
	}

	n, err := repo.DeleteImportBatch(ctx, "ana", "b1")
	if err != nil || n != 2 {
		t.Errorf("DeleteImportBatch() = %d, %v", n, err)
	}
	if _, err := repo.ImportRows(ctx, "ana", "b1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted batch: err = %v, want ErrNotFound", err)
	}
}

func TestExportLog(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	first := sheets.ExportRecord{
		JobID: uuid.New(), User: "ana", Title: "ana 2025-11", RowCount: 3,
		Ref: "'ana 2025-11'!A1:F4", ExportedAt: time.Date(2025, 11, 30, 9, 0, 0, 0, time.UTC),
	}
	second := sheets.ExportRecord{
		JobID: uuid.New(), User: "ana", Title: "ana 2025-12", RowCount: 5,
		Ref: "'ana 2025-12'!A1:F6", ExportedAt: time.Date(2025, 12, 31, 9, 0, 0, 0, time.UTC),
	}
	for _, rec := range []sheets.ExportRecord{first, second} {
		if err := repo.RecordExport(ctx, rec); err != nil {
			t.Fatalf("RecordExport() error = %v", err)
		}
	}
	dup := first
	dup.Ref = "other"
	if err := repo.RecordExport(ctx, dup); err != nil {
		t.Fatalf("RecordExport() duplicate error = %v", err)
	}

	ref, ok, err := repo.ExportRecorded(ctx, first.JobID.String())
	if err != nil || !ok || ref != first.Ref {
		t.Errorf("ExportRecorded() = %q, %v, %v", ref, ok, err)
	}
	if _, ok, _ := repo.ExportRecorded(ctx, uuid.NewString()); ok {
		t.Error("unknown job reported as recorded")
	}

	recent, err := repo.RecentExports(ctx, "ana", 10)
	if err != nil {
		t.Fatalf("RecentExports() error = %v", err)
	}
	if len(recent) != 2 || recent[0].JobID != second.JobID || recent[1].RowCount != 3 {
		t.Errorf("RecentExports() = %+v", recent)
	}
}
