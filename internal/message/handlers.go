package message

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/resumewright/resumewright/internal/convert"
	"github.com/resumewright/resumewright/internal/engine"
	"github.com/resumewright/resumewright/internal/settings"
)

// Handler side effects are isolated per message kind: settings handlers
// only touch the settings store, conversion handlers only the
// orchestrator. That keeps a failing handler's blast radius small.

// RegisterConversionHandlers wires the conversion message kinds to orch.
func RegisterConversionHandlers(r *Router, orch *convert.Orchestrator) {
	r.Register(TypeStartConversion, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req StartConversionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, errors.New("malformed startConversion payload")
		}

		result, err := orch.Convert(ctx, convert.Request{
			Content:  req.Content,
			FileName: req.FileName,
			Config:   req.Config,
		})
		if err != nil {
			return StartConversionResponse{Success: false, Error: err.Error()}, nil
		}
		return StartConversionResponse{
			Success:  true,
			JobID:    result.JobID,
			PDFBytes: result.PDF,
			Filename: result.Filename,
			Duration: result.DurationMillis,
		}, nil
	})

	r.Register(TypeCancelConversion, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req CancelConversionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, errors.New("malformed cancelConversion payload")
		}
		if req.JobID == "" {
			return nil, errors.New("jobId must not be empty")
		}
		cancelled := orch.Cancel(req.JobID)
		return CancelConversionResponse{Success: true, Cancelled: cancelled}, nil
	})

	r.Register(TypePopupOpened, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req PopupOpenedRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, errors.New("malformed popupOpened payload")
		}

		resp := PopupOpenedResponse{Acknowledged: true, RestoredJobs: []convert.ActiveJob{}}
		if req.RequestProgressUpdate {
			resp.RestoredJobs = orch.ActiveJobs()
		}
		return resp, nil
	})
}

// RegisterSettingsHandlers wires the settings message kinds to store.
func RegisterSettingsHandlers(r *Router, store *settings.Store) {
	r.Register(TypeGetSettings, func(ctx context.Context, raw json.RawMessage) (any, error) {
		loaded := store.Load(ctx)
		return SettingsResponse{Success: true, Settings: &loaded}, nil
	})

	r.Register(TypeUpdateSettings, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var req UpdateSettingsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, errors.New("malformed updateSettings payload")
		}

		updated, err := store.Update(ctx, req.Settings)
		if err != nil {
			return SettingsResponse{Success: false, Error: err.Error()}, nil
		}
		return SettingsResponse{Success: true, Settings: &updated}, nil
	})
}

// RegisterEngineStatusHandler wires the engine status probe.
func RegisterEngineStatusHandler(r *Router, eng engine.Engine) {
	r.Register(TypeEngineStatus, func(ctx context.Context, raw json.RawMessage) (any, error) {
		return eng.Status(), nil
	})
}
