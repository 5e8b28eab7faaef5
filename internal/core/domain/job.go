package domain

import "time"

type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ConversionJob is the journal record of one finished conversion.
type ConversionJob struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	Operation   Operation `json:"operation"`
	Status      JobStatus `json:"status"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	InputNames  []string  `json:"input_names"`
	InputBytes  int64     `json:"input_bytes"`
	OutputCount int       `json:"output_count"`
	OutputBytes int64     `json:"output_bytes"`
	DurationMS  int64     `json:"duration_ms"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
