package convert

import "github.com/resumewright/resumewright/internal/progress"

// Event types broadcast to every connected UI surface.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

// Event is a broadcast message about one job. PDF bytes are base64-encoded
// on the wire by the JSON codec.
type Event struct {
	Type           string             `json:"type"`
	JobID          string             `json:"jobId"`
	Progress       *progress.Progress `json:"progress,omitempty"`
	PDF            []byte             `json:"pdfBytes,omitempty"`
	Filename       string             `json:"filename,omitempty"`
	DurationMillis int64              `json:"duration,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Broadcaster fans events out to connected clients. Delivery failure (for
// example, no client connected) is the caller's to log and swallow — it is
// never a conversion failure.
type Broadcaster interface {
	Broadcast(ev Event) error
}
