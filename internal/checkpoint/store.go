package checkpoint

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// storageKey names the single blob in the local area that holds the full
// map of job id → checkpoint.
const storageKey = "activeJobs"

// area is the slice of the storage boundary the store needs.
type area interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, items map[string][]byte) error
}

// Store tracks job checkpoints. Durable state is the source of truth across
// restarts; the in-memory map is a cache rewritten on every mutation. Save
// and Clear never fail: a lost checkpoint write is recoverable (the job
// keeps running in memory) while a propagated error would abort it.
type Store struct {
	area area
	now  func() time.Time

	mu   sync.Mutex
	jobs map[string]Checkpoint
}

// NewStore creates a Store over the given storage area. Initialize must be
// called before any job is accepted.
func NewStore(a area) *Store {
	return &Store{
		area: a,
		now:  time.Now,
		jobs: make(map[string]Checkpoint),
	}
}

// Initialize reads the durable namespace and resets it for this process
// generation. A corrupt, mistyped, or absent blob is treated as empty; jobs
// left behind by a previous generation are logged as abandoned and dropped.
// Initialize never fails — worst case the store starts empty.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make(map[string]Checkpoint)

	items, err := s.area.Get(ctx, storageKey)
	if err != nil {
		slog.Warn("checkpoint namespace unreadable, starting empty", "error", err)
	} else if blob, ok := items[storageKey]; ok {
		var prior map[string]Checkpoint
		if err := json.Unmarshal(blob, &prior); err != nil {
			slog.Warn("checkpoint blob corrupted, starting empty", "error", err)
		} else if len(prior) > 0 {
			ids := make([]string, 0, len(prior))
			for id := range prior {
				ids = append(ids, id)
			}
			slog.Info("abandoning jobs from previous process generation",
				"count", len(prior), "jobIds", ids)
		}
	}

	// Each generation starts from a clean slate. Tolerate write failure;
	// stale state will be overwritten by the first Save anyway.
	if err := s.persistLocked(ctx); err != nil {
		slog.Warn("checkpoint namespace reset failed", "error", err)
	}
}

// Save creates or updates the checkpoint for jobID. On create, StartTime is
// set to now. On update, StartTime is preserved, Status is overwritten, and
// Content is overwritten only when a non-empty value is supplied.
func (s *Store) Save(ctx context.Context, jobID string, status Status, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	cp, exists := s.jobs[jobID]
	if !exists {
		cp = Checkpoint{JobID: jobID, StartTime: now}
	}
	cp.Status = status
	cp.LastUpdate = now
	if content != "" {
		cp.Content = content
	}
	s.jobs[jobID] = cp

	if err := s.persistLocked(ctx); err != nil {
		slog.Warn("checkpoint write failed", "jobId", jobID, "error", err)
	}
}

// Clear removes the in-memory and durable record for jobID. Clearing an
// unknown id is a no-op.
func (s *Store) Clear(ctx context.Context, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobID]; !exists {
		return
	}
	delete(s.jobs, jobID)

	if err := s.persistLocked(ctx); err != nil {
		slog.Warn("checkpoint clear failed", "jobId", jobID, "error", err)
	}
}

// Has reports whether a checkpoint exists for jobID.
func (s *Store) Has(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

// Get returns the checkpoint for jobID.
func (s *Store) Get(jobID string) (Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.jobs[jobID]
	return cp, ok
}

// ActiveJobIDs returns the ids of all tracked jobs. Order is unspecified.
func (s *Store) ActiveJobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}

// ActiveJobs returns the checkpoints of all jobs not in a terminal state.
func (s *Store) ActiveJobs() []Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	cps := make([]Checkpoint, 0, len(s.jobs))
	for _, cp := range s.jobs {
		if !cp.Status.IsTerminal() {
			cps = append(cps, cp)
		}
	}
	return cps
}

// persistLocked rewrites the durable blob from the in-memory map. The
// caller holds s.mu, which serializes writes so concurrent mutations of
// different job ids can never lose each other.
func (s *Store) persistLocked(ctx context.Context) error {
	blob, err := json.Marshal(s.jobs)
	if err != nil {
		return err
	}
	return s.area.Set(ctx, map[string][]byte{storageKey: blob})
}
