package report

import (
	"sync"
	"time"

	"sentinel/internal/model"
	"sentinel/internal/pipeline"
)

// Store keeps the latest run's ledger and a bounded history of run
// summaries in memory for the read-only API.
type Store struct {
	mu           sync.RWMutex
	events       []model.ScoredEvent
	summaries    []pipeline.RunSummary
	ledgerLimit  int
	summaryLimit int
}

func NewStore(ledgerLimit, summaryLimit int) *Store {
	if ledgerLimit <= 0 {
		ledgerLimit = 5000
	}
	if summaryLimit <= 0 {
		summaryLimit = 100
	}
	return &Store{ledgerLimit: ledgerLimit, summaryLimit: summaryLimit}
}

// SetLedger replaces the stored ledger with the latest run's events,
// truncated to the limit. Ledger order is preserved.
func (s *Store) SetLedger(events []model.ScoredEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(events)
	if n > s.ledgerLimit {
		n = s.ledgerLimit
	}
	s.events = append([]model.ScoredEvent(nil), events[:n]...)
}

func (s *Store) Events(limit int) []model.ScoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	return append([]model.ScoredEvent(nil), s.events[:limit]...)
}

func (s *Store) Since(ts time.Time) []model.ScoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScoredEvent, 0)
	for _, ev := range s.events {
		if !ev.Group.WindowStart.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Store) AddSummary(sum pipeline.RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.summaries) < s.summaryLimit {
		s.summaries = append(s.summaries, sum)
		return
	}
	copy(s.summaries, s.summaries[1:])
	s.summaries[len(s.summaries)-1] = sum
}

func (s *Store) LatestSummary() (pipeline.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.summaries) == 0 {
		return pipeline.RunSummary{}, false
	}
	return s.summaries[len(s.summaries)-1], true
}

func (s *Store) Summaries(limit int) []pipeline.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.summaries) {
		limit = len(s.summaries)
	}
	start := len(s.summaries) - limit
	return append([]pipeline.RunSummary(nil), s.summaries[start:]...)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.summaries = nil
}
