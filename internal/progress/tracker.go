// Package progress keeps the human-facing view of each job's advancement:
// the latest snapshot, a jitter-free ETA, and the bookkeeping a consumer
// needs to throttle screen-reader announcements.
package progress

import (
	"sync"
	"time"
)

// Progress is one job's current advancement. All fields beyond Stage,
// Percentage, and CurrentOperation are optional enrichments.
type Progress struct {
	Stage                  string `json:"stage"`
	Percentage             int    `json:"percentage"`
	CurrentOperation       string `json:"currentOperation"`
	EstimatedTimeRemaining int64  `json:"estimatedTimeRemaining,omitempty"` // seconds
	PagesProcessed         int    `json:"pagesProcessed,omitempty"`
	TotalPages             int    `json:"totalPages,omitempty"`
	RetryAttempt           int    `json:"retryAttempt,omitempty"`
	LastError              string `json:"lastError,omitempty"`
}

const (
	// etaStableAfter is how long a raw ETA must hold before the displayed
	// value follows it.
	etaStableAfter = 500 * time.Millisecond
	// etaJumpThreshold updates the displayed ETA immediately when the raw
	// value moves at least this many seconds.
	etaJumpThreshold = 2

	// announceMinPercent and announceMinInterval together throttle
	// announcements: both must have elapsed since the last one.
	announceMinPercent  = 10
	announceMinInterval = 5 * time.Second
)

type jobState struct {
	current Progress

	rawETA      int64
	rawETASince time.Time

	lastAnnouncedPct int
	lastAnnouncedAt  time.Time
	announced        bool
}

// Tracker stores the latest progress snapshot per job.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*jobState
	now  func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*jobState), now: time.Now}
}

// Update stores the latest snapshot for jobID and reports whether anything
// materially changed, so callers can skip redundant downstream
// notifications. The ETA is smoothed before the comparison: the displayed
// value only follows the raw one after it has been stable for a while or
// jumped past a threshold.
func (t *Tracker) Update(jobID string, p Progress) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.jobs[jobID]
	if !exists {
		state = &jobState{rawETA: p.EstimatedTimeRemaining, rawETASince: t.now()}
		t.jobs[jobID] = state
		state.current = p
		return true
	}

	p.EstimatedTimeRemaining = state.smoothETA(p.EstimatedTimeRemaining, t.now())
	if p == state.current {
		return false
	}
	state.current = p
	return true
}

// smoothETA debounces the raw ETA so the displayed value does not jitter.
func (s *jobState) smoothETA(raw int64, now time.Time) int64 {
	if raw != s.rawETA {
		s.rawETA = raw
		s.rawETASince = now
	}

	displayed := s.current.EstimatedTimeRemaining
	diff := raw - displayed
	if diff < 0 {
		diff = -diff
	}
	if diff >= etaJumpThreshold || now.Sub(s.rawETASince) >= etaStableAfter {
		return raw
	}
	return displayed
}

// Get returns the latest snapshot for jobID.
func (t *Tracker) Get(jobID string) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.jobs[jobID]
	if !ok {
		return Progress{}, false
	}
	return state.current, true
}

// Clear forgets jobID.
func (t *Tracker) Clear(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}

// Announce reports whether an accessibility announcement should be made for
// jobID now, and records it if so. Announcements are limited to once per
// 10% of progress or once per 5 seconds, whichever interval is longer; the
// first one for a job is always allowed.
func (t *Tracker) Announce(jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.jobs[jobID]
	if !ok {
		return false
	}

	now := t.now()
	if state.announced {
		if state.current.Percentage-state.lastAnnouncedPct < announceMinPercent {
			return false
		}
		if now.Sub(state.lastAnnouncedAt) < announceMinInterval {
			return false
		}
	}
	state.announced = true
	state.lastAnnouncedPct = state.current.Percentage
	state.lastAnnouncedAt = now
	return true
}

// LastAnnouncement exposes the throttle state for jobID: the percentage and
// time of the most recent announcement.
func (t *Tracker) LastAnnouncement(jobID string) (pct int, at time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.jobs[jobID]
	if !exists || !state.announced {
		return 0, time.Time{}, false
	}
	return state.lastAnnouncedPct, state.lastAnnouncedAt, true
}
