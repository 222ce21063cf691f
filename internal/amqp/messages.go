package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"budgetapp/internal/sheets"
)

// MessageVersion is bumped when ExportJob changes incompatibly.
const MessageVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported export job version")

// ExportJob carries a complete export. The worker has no backend session,
// so the rows travel with the message.
type ExportJob struct {
	Version     int                  `json:"version"`
	Request     sheets.ExportRequest `json:"request"`
	PublishedAt time.Time            `json:"published_at"`
}

func NewExportJob(req sheets.ExportRequest) *ExportJob {
	return &ExportJob{
		Version:     MessageVersion,
		Request:     req,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExportJob) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportJobFromJSON decodes and checks a message body.
func ExportJobFromJSON(data []byte) (*ExportJob, error) {
	var msg ExportJob
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Version != MessageVersion {
		return nil, ErrUnsupportedVersion
	}
	if err := msg.Request.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
