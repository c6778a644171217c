package app

import (
	"sync"
	"time"

	"github.com/JakeFAU/reddit-collector/internal/reddit"
)

// Run phases reported by /v1/run.
const (
	phaseIdle       = "idle"
	phaseCollecting = "collecting"
	phaseIngesting  = "ingesting"
	phaseDone       = "done"
	phaseFailed     = "failed"
)

// RunSnapshot is the operator view of the current run.
type RunSnapshot struct {
	RunID     string               `json:"run_id,omitempty"`
	Phase     string               `json:"phase"`
	StartedAt time.Time            `json:"started_at,omitzero"`
	Collect   *reddit.CollectStats `json:"collect,omitempty"`
	Ingest    *reddit.IngestStats  `json:"ingest,omitempty"`
	Error     string               `json:"error,omitempty"`
}

type runStatus struct {
	mu   sync.Mutex
	snap RunSnapshot
}

func newRunStatus() *runStatus {
	return &runStatus{snap: RunSnapshot{Phase: phaseIdle}}
}

func (s *runStatus) start(phase string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.StartedAt.IsZero() || s.snap.Phase == phaseIdle {
		s.snap.StartedAt = at
	}
	s.snap.Phase = phase
}

func (s *runStatus) collected(runID string, stats reddit.CollectStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RunID = runID
	s.snap.Collect = &stats
}

func (s *runStatus) ingested(stats reddit.IngestStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Ingest = &stats
}

func (s *runStatus) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.snap.Phase = phaseFailed
		s.snap.Error = err.Error()
		return
	}
	s.snap.Phase = phaseDone
}

func (s *runStatus) snapshot() RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
