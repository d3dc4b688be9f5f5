// Package message defines the typed protocol between the popup UI and the
// background service, and the router that dispatches inbound requests to
// their handlers.
package message

import (
	"github.com/resumewright/resumewright/internal/convert"
	"github.com/resumewright/resumewright/internal/settings"
)

// Type discriminates inbound requests. The set is closed: the router
// rejects anything else with a structured error rather than a crash.
type Type string

const (
	TypeStartConversion  Type = "startConversion"
	TypeCancelConversion Type = "cancelConversion"
	TypeGetSettings      Type = "getSettings"
	TypeUpdateSettings   Type = "updateSettings"
	TypePopupOpened      Type = "popupOpened"
	// TypeEngineStatus keeps the original "getWasmStatus" wire tag so
	// existing UI builds keep working against this service.
	TypeEngineStatus Type = "getWasmStatus"
)

// Envelope carries the fields common to every request frame. RequestID,
// when present, is echoed on the response so the UI can correlate replies.
type Envelope struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId,omitempty"`
}

// StartConversionRequest asks for a document to be converted to PDF.
type StartConversionRequest struct {
	Envelope
	Content  string                `json:"content"`
	FileName string                `json:"fileName,omitempty"`
	Config   *settings.ConfigPatch `json:"config,omitempty"`
}

// StartConversionResponse carries the finished PDF or a structured failure.
type StartConversionResponse struct {
	Success  bool   `json:"success"`
	JobID    string `json:"jobId,omitempty"`
	PDFBytes []byte `json:"pdfBytes,omitempty"`
	Filename string `json:"filename,omitempty"`
	Duration int64  `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CancelConversionRequest cancels a running job. Cancelling a terminal or
// unknown job succeeds as a no-op.
type CancelConversionRequest struct {
	Envelope
	JobID string `json:"jobId"`
}

// CancelConversionResponse acknowledges a cancellation request.
type CancelConversionResponse struct {
	Success   bool `json:"success"`
	Cancelled bool `json:"cancelled"`
}

// GetSettingsRequest reads the current settings.
type GetSettingsRequest struct {
	Envelope
}

// UpdateSettingsRequest applies a partial settings update.
type UpdateSettingsRequest struct {
	Envelope
	Settings settings.Patch `json:"settings"`
}

// SettingsResponse answers both settings requests.
type SettingsResponse struct {
	Success  bool               `json:"success"`
	Settings *settings.Settings `json:"settings,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// PopupOpenedRequest announces a freshly opened popup. With the restore
// flag set, the response carries every active job's state so the UI can
// reflect in-flight work.
type PopupOpenedRequest struct {
	Envelope
	RequestProgressUpdate bool `json:"requestProgressUpdate"`
}

// PopupOpenedResponse acknowledges the popup and optionally restores jobs.
type PopupOpenedResponse struct {
	Acknowledged bool                `json:"acknowledged"`
	RestoredJobs []convert.ActiveJob `json:"restoredJobs"`
}

// EngineStatusRequest probes whether the conversion engine is ready.
type EngineStatusRequest struct {
	Envelope
}

// ErrorResponse is the uniform failure shape for any request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
