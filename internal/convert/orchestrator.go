// Package convert drives a conversion job through its stages: it validates
// the request, resolves configuration, delegates the work to the external
// engine, and keeps checkpoints, progress, and broadcast listeners in sync
// at every transition.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resumewright/resumewright/internal/checkpoint"
	"github.com/resumewright/resumewright/internal/engine"
	"github.com/resumewright/resumewright/internal/progress"
	"github.com/resumewright/resumewright/internal/settings"
)

// ErrNoContent rejects conversion requests with an empty document.
var ErrNoContent = errors.New("no content provided for conversion")

// ErrCancelled marks a job that observed its cancellation.
var ErrCancelled = errors.New("conversion cancelled")

// Request is an accepted conversion request. Config, when present, takes
// precedence field-by-field over the settings store's default config.
type Request struct {
	Content  string
	FileName string
	Config   *settings.ConfigPatch
}

// Result is the outcome of a completed conversion.
type Result struct {
	JobID          string
	PDF            []byte
	Filename       string
	DurationMillis int64
}

// ActiveJob pairs a live job's checkpoint with its latest progress, for
// rehydrating a freshly opened popup.
type ActiveJob struct {
	Checkpoint checkpoint.Checkpoint `json:"checkpoint"`
	Progress   *progress.Progress    `json:"progress,omitempty"`
}

// stageFloor fixes the percentage each stage begins at, so progress never
// regresses when the engine reports a stage without a percentage.
var stageFloor = map[checkpoint.Status]int{
	checkpoint.StatusQueued:             0,
	checkpoint.StatusParsing:            5,
	checkpoint.StatusExtractingMetadata: 10,
	checkpoint.StatusRendering:          25,
	checkpoint.StatusLayingOut:          45,
	checkpoint.StatusOptimizing:         65,
	checkpoint.StatusGeneratingPDF:      85,
}

var stageOperations = map[checkpoint.Status]string{
	checkpoint.StatusQueued:             "Waiting to start",
	checkpoint.StatusParsing:            "Parsing document",
	checkpoint.StatusExtractingMetadata: "Extracting metadata",
	checkpoint.StatusRendering:          "Rendering content",
	checkpoint.StatusLayingOut:          "Laying out pages",
	checkpoint.StatusOptimizing:         "Optimizing output",
	checkpoint.StatusGeneratingPDF:      "Generating PDF",
}

// Orchestrator owns the conversion state machine. Each job's state is
// independent and addressed solely by its id; cancellation is cooperative
// through a per-job context.
type Orchestrator struct {
	checkpoints *checkpoint.Store
	progress    *progress.Tracker
	settings    *settings.Store
	engine      engine.Engine
	broadcaster Broadcaster

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator with its dependencies.
func New(cps *checkpoint.Store, tracker *progress.Tracker, st *settings.Store,
	eng engine.Engine, b Broadcaster) *Orchestrator {
	return &Orchestrator{
		checkpoints: cps,
		progress:    tracker,
		settings:    st,
		engine:      eng,
		broadcaster: b,
		cancels:     make(map[string]context.CancelFunc),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Convert runs one conversion request to its terminal state. It returns
// the result on completion, or the failure that ended the job; either way
// the job's checkpoint is cleared and a terminal event has been broadcast.
func (o *Orchestrator) Convert(ctx context.Context, req Request) (*Result, error) {
	if req.Content == "" {
		return nil, ErrNoContent
	}

	cfg := o.resolveConfig(ctx, req.Config)
	jobID := o.newID()
	start := o.now()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.registerCancel(jobID, cancel)
	defer o.unregisterCancel(jobID)

	o.transition(ctx, jobID, checkpoint.StatusQueued, req.Content)
	o.transition(ctx, jobID, checkpoint.StatusParsing, "")

	meta := o.extractMetadata(jobCtx, jobID, req)

	if jobCtx.Err() != nil {
		return nil, o.finishCancelled(ctx, jobID)
	}

	pdf, err := o.engine.Convert(jobCtx, req.Content, cfg,
		o.progressCallback(ctx, jobID, start),
		o.retryCallback(ctx, jobID))
	if err != nil {
		if jobCtx.Err() != nil {
			return nil, o.finishCancelled(ctx, jobID)
		}
		return nil, o.finishFailed(ctx, jobID, err)
	}

	filename := generateFilename(meta)
	duration := o.now().Sub(start).Milliseconds()
	o.finishCompleted(ctx, jobID, pdf, filename, duration)

	return &Result{JobID: jobID, PDF: pdf, Filename: filename, DurationMillis: duration}, nil
}

// Cancel signals the job to stop at its next cooperative checkpoint.
// Returns false when no live job has that id; cancelling a terminal or
// unknown job is a no-op.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// ActiveJobs returns a snapshot of every non-terminal job, pairing its
// checkpoint with the latest progress.
func (o *Orchestrator) ActiveJobs() []ActiveJob {
	cps := o.checkpoints.ActiveJobs()
	jobs := make([]ActiveJob, 0, len(cps))
	for _, cp := range cps {
		job := ActiveJob{Checkpoint: cp}
		if p, ok := o.progress.Get(cp.JobID); ok {
			job.Progress = &p
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// resolveConfig applies the three-tier precedence: explicit request config
// over the settings default over the hardcoded fallback.
func (o *Orchestrator) resolveConfig(ctx context.Context, patch *settings.ConfigPatch) settings.ConversionConfig {
	base := o.settings.Load(ctx).DefaultConfig

	cfg := patch.Apply(base)
	if err := cfg.Validate(); err != nil {
		slog.Warn("resolved config invalid, using fallback", "error", err)
		return settings.FallbackConfig()
	}
	return cfg
}

// extractMetadata walks the fallback chain: engine extraction, then
// filename parsing, then nil. Metadata absence only degrades the suggested
// filename; it is never fatal.
func (o *Orchestrator) extractMetadata(ctx context.Context, jobID string, req Request) *engine.Metadata {
	o.transition(ctx, jobID, checkpoint.StatusExtractingMetadata, "")

	meta, err := o.engine.ExtractMetadata(ctx, req.Content)
	if err == nil && meta != nil {
		return meta
	}
	if err != nil {
		slog.Info("engine metadata extraction failed, trying filename", "jobId", jobID, "error", err)
	}

	if req.FileName != "" {
		if meta := metadataFromFilename(req.FileName); meta != nil {
			return meta
		}
	}
	return nil
}

// generateFilename is best-effort: a panic inside filename derivation must
// not fail an otherwise-complete job.
func generateFilename(meta *engine.Metadata) (filename string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("filename generation failed", "panic", r)
			filename = ""
		}
	}()
	return suggestedFilename(meta)
}

// progressCallback adapts engine progress reports into checkpoint writes,
// tracker updates, and broadcasts. Percentages are clamped monotonic.
func (o *Orchestrator) progressCallback(ctx context.Context, jobID string, start time.Time) engine.ProgressFunc {
	var lastStage checkpoint.Status
	best := 0

	return func(stage string, percentage int) {
		status := checkpoint.Status(stage)
		floor, known := stageFloor[status]
		if !known {
			status = checkpoint.StatusRendering
			floor = stageFloor[status]
		}

		if percentage < floor {
			percentage = floor
		}
		if percentage < best {
			percentage = best
		}
		if percentage > 99 {
			percentage = 99
		}
		best = percentage

		if status != lastStage {
			lastStage = status
			o.checkpoints.Save(ctx, jobID, status, "")
		}

		o.publishProgress(jobID, progress.Progress{
			Stage:                  string(status),
			Percentage:             percentage,
			CurrentOperation:       stageOperations[status],
			EstimatedTimeRemaining: estimateRemaining(o.now().Sub(start), percentage),
		})
	}
}

// retryCallback resets the visible progress for a retry attempt; this is
// the one sanctioned percentage regression.
func (o *Orchestrator) retryCallback(ctx context.Context, jobID string) engine.RetryFunc {
	return func(attempt int, lastErr error) {
		slog.Info("conversion retrying", "jobId", jobID, "attempt", attempt, "error", lastErr)
		o.checkpoints.Save(ctx, jobID, checkpoint.StatusQueued, "")
		o.progress.Clear(jobID)
		o.publishProgress(jobID, progress.Progress{
			Stage:            string(checkpoint.StatusQueued),
			Percentage:       0,
			CurrentOperation: fmt.Sprintf("Retrying (attempt %d)", attempt),
			RetryAttempt:     attempt,
			LastError:        lastErr.Error(),
		})
	}
}

// transition advances the job to a new stage: checkpoint write, progress
// update, broadcast.
func (o *Orchestrator) transition(ctx context.Context, jobID string, status checkpoint.Status, content string) {
	o.checkpoints.Save(ctx, jobID, status, content)
	o.publishProgress(jobID, progress.Progress{
		Stage:            string(status),
		Percentage:       stageFloor[status],
		CurrentOperation: stageOperations[status],
	})
}

// publishProgress updates the tracker and, when something materially
// changed, broadcasts the new snapshot.
func (o *Orchestrator) publishProgress(jobID string, p progress.Progress) {
	if !o.progress.Update(jobID, p) {
		return
	}
	current, _ := o.progress.Get(jobID)
	o.broadcast(Event{Type: EventProgress, JobID: jobID, Progress: &current})
}

func (o *Orchestrator) finishCompleted(ctx context.Context, jobID string, pdf []byte, filename string, duration int64) {
	o.checkpoints.Clear(ctx, jobID)
	o.progress.Clear(jobID)
	o.broadcast(Event{
		Type:           EventCompleted,
		JobID:          jobID,
		PDF:            pdf,
		Filename:       filename,
		DurationMillis: duration,
	})
}

func (o *Orchestrator) finishFailed(ctx context.Context, jobID string, err error) error {
	o.checkpoints.Clear(ctx, jobID)
	o.progress.Clear(jobID)
	o.broadcast(Event{Type: EventFailed, JobID: jobID, Error: err.Error()})
	return fmt.Errorf("conversion failed: %w", err)
}

func (o *Orchestrator) finishCancelled(ctx context.Context, jobID string) error {
	o.checkpoints.Clear(ctx, jobID)
	o.progress.Clear(jobID)
	o.broadcast(Event{Type: EventCancelled, JobID: jobID})
	return ErrCancelled
}

// broadcast delivers an event, logging and swallowing delivery failures —
// a popup that is not open must never fail a conversion.
func (o *Orchestrator) broadcast(ev Event) {
	if o.broadcaster == nil {
		return
	}
	if err := o.broadcaster.Broadcast(ev); err != nil {
		slog.Info("broadcast not delivered", "type", ev.Type, "jobId", ev.JobID, "error", err)
	}
}

func (o *Orchestrator) registerCancel(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[jobID] = cancel
}

func (o *Orchestrator) unregisterCancel(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, jobID)
}

// estimateRemaining projects the remaining seconds from elapsed time and
// completed percentage.
func estimateRemaining(elapsed time.Duration, percentage int) int64 {
	if percentage <= 0 || percentage >= 100 {
		return 0
	}
	perPercent := elapsed / time.Duration(percentage)
	return int64((perPercent * time.Duration(100-percentage)).Seconds())
}
