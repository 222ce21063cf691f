// Package worker runs spreadsheet exports, either from the AMQP queue or
// inline for the server when no broker is configured.
package worker

import (
	"context"
	"fmt"
	"time"

	"budgetapp/internal/amqp"
	applog "budgetapp/internal/log"
	"budgetapp/internal/sheets"
)

// ExportLog remembers finished exports so a redelivered job is not
// written to the sheet twice.
type ExportLog interface {
	ExportRecorded(ctx context.Context, jobID string) (ref string, ok bool, err error)
	RecordExport(ctx context.Context, rec sheets.ExportRecord) error
}

// ExportWorker wraps an exporter with the export log.
type ExportWorker struct {
	exporter sheets.TransactionExporter
	log      ExportLog
	logger   *applog.Logger
	now      func() time.Time
}

var _ sheets.TransactionExporter = (*ExportWorker)(nil)

func NewExportWorker(exporter sheets.TransactionExporter, log ExportLog, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ExportWorker{
		exporter: exporter,
		log:      log,
		logger:   logger.WithComponent(applog.ComponentWorker),
		now:      time.Now,
	}
}

// Export runs req once. A job already in the log returns its recorded ref.
func (w *ExportWorker) Export(ctx context.Context, req sheets.ExportRequest) (string, error) {
	jobID := req.ID.String()
	if w.log != nil {
		ref, ok, err := w.log.ExportRecorded(ctx, jobID)
		if err != nil {
			return "", fmt.Errorf("check export log: %w", err)
		}
		if ok {
			w.logger.InfoContext(ctx, "Export already done, skipping",
				applog.FieldJobID, jobID, applog.FieldSheetsRef, ref)
			return ref, nil
		}
	}

	start := w.now()
	ref, err := w.exporter.Export(ctx, req)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", jobID, err)
	}

	if w.log != nil {
		rec := sheets.ExportRecord{
			JobID:      req.ID,
			User:       req.User,
			Title:      req.Title,
			RowCount:   len(req.Rows),
			Ref:        ref,
			ExportedAt: w.now(),
		}
		// The sheet already has the rows; a failed record only risks a
		// duplicate on redelivery.
		if err := w.log.RecordExport(ctx, rec); err != nil {
			w.logger.WarnContext(ctx, "Failed to record export", applog.FieldJobID, jobID, applog.FieldError, err)
		}
	}

	w.logger.InfoContext(ctx, "Export finished",
		applog.FieldJobID, jobID,
		applog.FieldUser, req.User,
		applog.FieldCount, len(req.Rows),
		applog.FieldSheetsRef, ref,
		applog.FieldDuration, w.now().Sub(start).Milliseconds())
	return ref, nil
}

// HandleJob is the AMQP consumer callback.
func (w *ExportWorker) HandleJob(ctx context.Context, job *amqp.ExportJob) error {
	_, err := w.Export(ctx, job.Request)
	return err
}
