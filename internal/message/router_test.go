package message

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/resumewright/resumewright/internal/checkpoint"
	"github.com/resumewright/resumewright/internal/convert"
	"github.com/resumewright/resumewright/internal/engine"
	"github.com/resumewright/resumewright/internal/progress"
	"github.com/resumewright/resumewright/internal/settings"
	"github.com/resumewright/resumewright/internal/storage"
)

// stubEngine is a scriptable engine for router-level tests.
type stubEngine struct {
	convertCalls int
	convertErr   error
	status       engine.Status
}

func (s *stubEngine) ExtractMetadata(ctx context.Context, content string) (*engine.Metadata, error) {
	return nil, errors.New("no metadata")
}

func (s *stubEngine) Convert(ctx context.Context, content string, cfg settings.ConversionConfig,
	onProgress engine.ProgressFunc, onRetry engine.RetryFunc) ([]byte, error) {
	s.convertCalls++
	if s.convertErr != nil {
		return nil, s.convertErr
	}
	return []byte("%PDF"), nil
}

func (s *stubEngine) Status() engine.Status { return s.status }

type dropBroadcaster struct{}

func (dropBroadcaster) Broadcast(convert.Event) error { return nil }

// newTestRouter wires a full router over in-memory stores and the stub
// engine, mirroring the wiring in main.
func newTestRouter(t *testing.T, eng engine.Engine) (*Router, *checkpoint.Store, *settings.Store) {
	t.Helper()
	ctx := context.Background()

	cps := checkpoint.NewStore(storage.NewMemory())
	cps.Initialize(ctx)
	st := settings.NewStore(storage.NewMemory())
	orch := convert.New(cps, progress.NewTracker(), st, eng, dropBroadcaster{})

	r := NewRouter()
	RegisterConversionHandlers(r, orch)
	RegisterSettingsHandlers(r, st)
	RegisterEngineStatusHandler(r, eng)
	return r, cps, st
}

func TestDispatchUnknownType(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubEngine{})

	body, requestID := r.Dispatch(context.Background(), []byte(`{"type":"teleport","requestId":"r1"}`))
	resp, ok := body.(ErrorResponse)
	if !ok {
		t.Fatalf("body = %T, want ErrorResponse", body)
	}
	if !strings.Contains(resp.Error, "unknown message type") {
		t.Errorf("error = %q, want unknown-type message", resp.Error)
	}
	if requestID != "r1" {
		t.Errorf("requestID = %q, want %q", requestID, "r1")
	}
}

func TestDispatchMalformedFrame(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubEngine{})

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":`))
	resp, ok := body.(ErrorResponse)
	if !ok {
		t.Fatalf("body = %T, want ErrorResponse", body)
	}
	if resp.Error == "" {
		t.Error("malformed frame produced empty error")
	}
}

func TestDispatchPanicNormalized(t *testing.T) {
	r := NewRouter()
	r.Register("explode", func(ctx context.Context, raw json.RawMessage) (any, error) {
		panic(errors.New("handler blew up"))
	})
	r.Register("explodeRaw", func(ctx context.Context, raw json.RawMessage) (any, error) {
		panic(42) // non-error panic value
	})

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"explode"}`))
	resp, ok := body.(ErrorResponse)
	if !ok {
		t.Fatalf("body = %T, want ErrorResponse", body)
	}
	if resp.Error != "handler blew up" {
		t.Errorf("error = %q, want panic message", resp.Error)
	}

	body, _ = r.Dispatch(context.Background(), []byte(`{"type":"explodeRaw"}`))
	resp, ok = body.(ErrorResponse)
	if !ok {
		t.Fatalf("body = %T, want ErrorResponse", body)
	}
	if resp.Error != "internal error" {
		t.Errorf("error = %q, want generic message for non-error panic", resp.Error)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRouter()
	h := func(ctx context.Context, raw json.RawMessage) (any, error) { return nil, nil }
	r.Register("x", h)

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	r.Register("x", h)
}

func TestStartConversionEmptyContent(t *testing.T) {
	eng := &stubEngine{}
	r, _, _ := newTestRouter(t, eng)

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"startConversion","content":""}`))
	resp, ok := body.(StartConversionResponse)
	if !ok {
		t.Fatalf("body = %T, want StartConversionResponse", body)
	}
	if resp.Success {
		t.Error("Success = true for empty content, want false")
	}
	if !strings.Contains(resp.Error, "no content") {
		t.Errorf("error = %q, want missing-content message", resp.Error)
	}
	if eng.convertCalls != 0 {
		t.Errorf("engine invoked %d times, want 0", eng.convertCalls)
	}
}

func TestStartConversionSuccess(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubEngine{})

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"startConversion","content":"# CV"}`))
	resp, ok := body.(StartConversionResponse)
	if !ok {
		t.Fatalf("body = %T, want StartConversionResponse", body)
	}
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Error)
	}
	if string(resp.PDFBytes) != "%PDF" {
		t.Errorf("PDFBytes = %q, want engine output", resp.PDFBytes)
	}
	if resp.JobID == "" {
		t.Error("JobID empty")
	}
}

func TestStartConversionEngineError(t *testing.T) {
	eng := &stubEngine{convertErr: errors.New("X")}
	r, _, _ := newTestRouter(t, eng)

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"startConversion","content":"# CV"}`))
	resp, ok := body.(StartConversionResponse)
	if !ok {
		t.Fatalf("body = %T, want StartConversionResponse", body)
	}
	if resp.Success {
		t.Error("Success = true for engine failure, want false")
	}
	if !strings.Contains(resp.Error, "X") {
		t.Errorf("error = %q, want engine message", resp.Error)
	}
}

func TestCancelConversionMissingJobID(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubEngine{})

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"cancelConversion"}`))
	if _, ok := body.(ErrorResponse); !ok {
		t.Fatalf("body = %T, want ErrorResponse for missing jobId", body)
	}
}

func TestCancelConversionUnknownJob(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubEngine{})

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"cancelConversion","jobId":"ghost"}`))
	resp, ok := body.(CancelConversionResponse)
	if !ok {
		t.Fatalf("body = %T, want CancelConversionResponse", body)
	}
	if !resp.Success {
		t.Error("Success = false, want true (cancel of unknown job is a no-op)")
	}
	if resp.Cancelled {
		t.Error("Cancelled = true for unknown job, want false")
	}
}

func TestGetSettingsDefaults(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubEngine{})

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"getSettings"}`))
	resp, ok := body.(SettingsResponse)
	if !ok {
		t.Fatalf("body = %T, want SettingsResponse", body)
	}
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Error)
	}
	if resp.Settings == nil || resp.Settings.SettingsVersion != 1 {
		t.Errorf("Settings = %+v, want defaults with version 1", resp.Settings)
	}
}

func TestGetSettingsStorageFailure(t *testing.T) {
	mem := storage.NewMemory()
	mem.GetErr = errors.New("backend down")

	r := NewRouter()
	RegisterSettingsHandlers(r, settings.NewStore(mem))

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"getSettings"}`))
	resp, ok := body.(SettingsResponse)
	if !ok {
		t.Fatalf("body = %T, want SettingsResponse", body)
	}
	if !resp.Success {
		t.Fatalf("Success = false for unreadable storage, want self-healed defaults: %s", resp.Error)
	}
	if resp.Settings == nil || *resp.Settings != settings.Defaults() {
		t.Errorf("Settings = %+v, want defaults", resp.Settings)
	}
}

func TestUpdateSettings(t *testing.T) {
	r, _, st := newTestRouter(t, &stubEngine{})

	body, _ := r.Dispatch(context.Background(),
		[]byte(`{"type":"updateSettings","settings":{"defaultConfig":{"pageSize":"A4"}}}`))
	resp, ok := body.(SettingsResponse)
	if !ok {
		t.Fatalf("body = %T, want SettingsResponse", body)
	}
	if !resp.Success {
		t.Fatalf("Success = false: %s", resp.Error)
	}
	if resp.Settings.DefaultConfig.PageSize != "A4" {
		t.Errorf("PageSize = %q, want %q", resp.Settings.DefaultConfig.PageSize, "A4")
	}

	if loaded := st.Load(context.Background()); loaded.DefaultConfig.PageSize != "A4" {
		t.Error("update not persisted")
	}
}

func TestUpdateSettingsInvalid(t *testing.T) {
	r, _, _ := newTestRouter(t, &stubEngine{})

	body, _ := r.Dispatch(context.Background(),
		[]byte(`{"type":"updateSettings","settings":{"defaultConfig":{"pageSize":"Tabloid"}}}`))
	resp, ok := body.(SettingsResponse)
	if !ok {
		t.Fatalf("body = %T, want SettingsResponse", body)
	}
	if resp.Success {
		t.Error("Success = true for invalid page size, want false")
	}
	if resp.Error == "" {
		t.Error("error empty for invalid update")
	}
}

func TestPopupOpenedWithoutRestore(t *testing.T) {
	r, cps, _ := newTestRouter(t, &stubEngine{})
	cps.Save(context.Background(), "job-1", checkpoint.StatusParsing, "")

	body, _ := r.Dispatch(context.Background(),
		[]byte(`{"type":"popupOpened","requestProgressUpdate":false}`))
	resp, ok := body.(PopupOpenedResponse)
	if !ok {
		t.Fatalf("body = %T, want PopupOpenedResponse", body)
	}
	if !resp.Acknowledged {
		t.Error("Acknowledged = false, want true")
	}
	if len(resp.RestoredJobs) != 0 {
		t.Errorf("RestoredJobs = %d without restore flag, want 0", len(resp.RestoredJobs))
	}
}

func TestPopupOpenedRestoresActiveJobs(t *testing.T) {
	r, cps, _ := newTestRouter(t, &stubEngine{})
	ctx := context.Background()
	cps.Save(ctx, "job-1", checkpoint.StatusParsing, "")
	cps.Save(ctx, "job-2", checkpoint.StatusRendering, "")

	body, _ := r.Dispatch(ctx, []byte(`{"type":"popupOpened","requestProgressUpdate":true}`))
	resp, ok := body.(PopupOpenedResponse)
	if !ok {
		t.Fatalf("body = %T, want PopupOpenedResponse", body)
	}
	if len(resp.RestoredJobs) != 2 {
		t.Fatalf("RestoredJobs = %d, want 2", len(resp.RestoredJobs))
	}
	seen := map[string]bool{}
	for _, j := range resp.RestoredJobs {
		seen[j.Checkpoint.JobID] = true
	}
	if !seen["job-1"] || !seen["job-2"] {
		t.Errorf("restored ids = %v, want job-1 and job-2", seen)
	}
}

func TestEngineStatus(t *testing.T) {
	eng := &stubEngine{status: engine.Status{Initialized: true, InitTime: 42}}
	r, _, _ := newTestRouter(t, eng)

	body, _ := r.Dispatch(context.Background(), []byte(`{"type":"getWasmStatus"}`))
	status, ok := body.(engine.Status)
	if !ok {
		t.Fatalf("body = %T, want engine.Status", body)
	}
	if !status.Initialized || status.InitTime != 42 {
		t.Errorf("status = %+v, want initialized with init time", status)
	}
}
