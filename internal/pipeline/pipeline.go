package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/correlate"
	"sentinel/internal/detect"
	"sentinel/internal/ledger"
	"sentinel/internal/model"
	"sentinel/internal/score"
)

// RunSummary is the structured skip/warning accounting every run emits
// alongside its ledger.
type RunSummary struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Detectors  []detect.Stats `json:"detectors"`
	Groups     int            `json:"groups"`
	Events     int            `json:"events"`
	Duplicates int            `json:"duplicates_dropped"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Pipeline wires the batch stages together: parallel detectors, a
// barrier, the single-threaded correlation sweep, parallel scoring, and
// the single-threaded ledger build.
type Pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	detectors []detect.Detector
	engine    *correlate.Engine
	scorer    *score.Scorer
}

func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		detectors: detect.All(cfg.Detectors),
		engine:    correlate.NewEngine(cfg.Correlation),
		scorer:    score.NewScorer(cfg.Severity),
	}
}

// Run executes one closed analysis window over the given per-source
// record slices (each ordered by timestamp). If the context deadline
// expires mid-run, the partial results are discarded and an error is
// returned: a half-correlated ledger is worse than none.
func (p *Pipeline) Run(ctx context.Context, records map[model.Source][]model.RawRecord) ([]model.ScoredEvent, RunSummary, error) {
	summary := RunSummary{StartedAt: time.Now().UTC()}

	// Detectors are mutually independent: each reads only its own
	// source slice and writes only its own result slot.
	batches := make([][]model.CandidateEvent, len(p.detectors))
	stats := make([]detect.Stats, len(p.detectors))
	var wg sync.WaitGroup
	for i, d := range p.detectors {
		wg.Add(1)
		go func(i int, d detect.Detector) {
			defer wg.Done()
			batches[i], stats[i] = d.Detect(records[d.Source()])
		}(i, d)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, RunSummary{}, fmt.Errorf("run aborted after detection: %w", err)
	}

	summary.Detectors = stats
	for _, st := range stats {
		if st.Records == 0 {
			warn := fmt.Sprintf("source %s has no records", st.Source)
			summary.Warnings = append(summary.Warnings, warn)
			if p.logger != nil {
				p.logger.Warn("empty source", "source", st.Source)
			}
		}
		if st.Skipped > 0 && p.logger != nil {
			p.logger.Warn("skipped malformed records", "source", st.Source, "skipped", st.Skipped)
		}
	}

	groups := p.engine.Correlate(batches)
	summary.Groups = len(groups)

	if err := ctx.Err(); err != nil {
		return nil, RunSummary{}, fmt.Errorf("run aborted after correlation: %w", err)
	}

	// Scoring is a pure per-group map; order is preserved by index.
	scored := make([]model.ScoredEvent, len(groups))
	for i := range groups {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			scored[i] = p.scorer.Score(groups[i])
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, RunSummary{}, fmt.Errorf("run aborted after scoring: %w", err)
	}

	events, dropped := ledger.Build(scored, p.logger)
	summary.Events = len(events)
	summary.Duplicates = dropped
	if dropped > 0 {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("%d events dropped for duplicate group ids", dropped))
	}
	summary.FinishedAt = time.Now().UTC()

	if p.logger != nil {
		p.logger.Info("run complete",
			"groups", summary.Groups,
			"events", summary.Events,
			"duplicates_dropped", summary.Duplicates,
		)
	}
	return events, summary, nil
}
