// Package memory keeps exports in process. It backs development setups
// without Google credentials and the export tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "budgetapp/internal/sheets"
)

type Exporter struct {
	mu      sync.Mutex
	exports []ports.ExportRequest
	err     error
}

var _ ports.TransactionExporter = (*Exporter)(nil)

func New() *Exporter { return &Exporter{} }

// Export stores the request and returns a synthetic reference.
func (e *Exporter) Export(_ context.Context, req ports.ExportRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	rows := append([]ports.ExportRow(nil), req.Rows...)
	req.Rows = rows
	e.exports = append(e.exports, req)
	return fmt.Sprintf("mem:%s!%d", req.Title, len(e.exports)), nil
}

// Exports returns what has been exported so far.
func (e *Exporter) Exports() []ports.ExportRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ports.ExportRequest(nil), e.exports...)
}

// FailWith makes subsequent exports fail with err. A nil err clears it.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}
