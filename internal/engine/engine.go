// Package engine defines the boundary to the external conversion engine:
// the component that parses CV markup, lays it out, and produces PDF bytes.
// Everything behind this boundary is opaque to the rest of the service.
package engine

import (
	"context"

	"github.com/resumewright/resumewright/internal/settings"
)

// Metadata is what the engine can extract from a document: enough to derive
// a good output filename. Any field may be empty.
type Metadata struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Status reports whether the engine backend is ready.
type Status struct {
	Initialized bool   `json:"initialized"`
	Error       string `json:"error,omitempty"`
	InitTime    int64  `json:"initTime,omitempty"` // milliseconds
}

// ProgressFunc receives stage transitions and percentages while a
// conversion runs.
type ProgressFunc func(stage string, percentage int)

// RetryFunc is invoked before each retry of a failed conversion attempt.
type RetryFunc func(attempt int, lastErr error)

// Engine is the external conversion capability.
type Engine interface {
	// ExtractMetadata pulls document metadata from the markup. Failure is
	// expected and non-fatal; callers fall back to other strategies.
	ExtractMetadata(ctx context.Context, content string) (*Metadata, error)
	// Convert turns markup into PDF bytes, reporting progress as it goes.
	Convert(ctx context.Context, content string, cfg settings.ConversionConfig,
		onProgress ProgressFunc, onRetry RetryFunc) ([]byte, error)
	// Status reports backend readiness, probed once at startup.
	Status() Status
}
