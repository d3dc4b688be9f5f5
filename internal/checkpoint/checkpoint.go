// Package checkpoint persists a durable snapshot of every tracked
// conversion job so the service can be killed and restarted at any point
// without losing track of what was in flight.
package checkpoint

// Status is a job's position in the conversion state machine.
type Status string

const (
	StatusQueued             Status = "queued"
	StatusParsing            Status = "parsing"
	StatusExtractingMetadata Status = "extracting-metadata"
	StatusRendering          Status = "rendering"
	StatusLayingOut          Status = "laying-out"
	StatusOptimizing         Status = "optimizing"
	StatusGeneratingPDF      Status = "generating-pdf"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

// IsTerminal returns true for statuses that represent a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Checkpoint is the durable record of one job. Timestamps are milliseconds
// since the epoch. Content is optional; omitting it on update preserves the
// previously stored value.
type Checkpoint struct {
	JobID      string `json:"jobId"`
	Status     Status `json:"status"`
	Content    string `json:"content,omitempty"`
	StartTime  int64  `json:"startTime"`
	LastUpdate int64  `json:"lastUpdate"`
}
