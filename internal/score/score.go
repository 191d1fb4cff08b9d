package score

import (
	"sentinel/internal/config"
	"sentinel/internal/model"
)

// Scorer maps a closed group to a severity tier. It is a pure function
// of the group and the configuration: no randomness, no clock, so the
// same group always scores identically and scoring may run in parallel
// across groups.
type Scorer struct {
	cfg config.SeverityConfig
}

func NewScorer(cfg config.SeverityConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the weighted sum of the three severity features.
// Independent corroboration is the strongest fraud signal, so the
// agreement term carries the full source count while magnitude and
// confidence are both normalized into [0, 1] first.
func (s *Scorer) Score(g model.CorrelatedGroup) model.ScoredEvent {
	agreement := s.cfg.Weights.Agreement * float64(g.Agreement)
	magnitude := s.cfg.Weights.Magnitude * s.peakMagnitude(g.Members)
	confidence := s.cfg.Weights.Confidence * aggregateConfidence(g.Members)
	total := agreement + magnitude + confidence

	return model.ScoredEvent{
		Group:    g,
		Severity: s.tier(total),
		Score:    total,
		Rationale: []model.Factor{
			{Name: "source_agreement", Contribution: agreement},
			{Name: "peak_magnitude", Contribution: magnitude},
			{Name: "aggregate_confidence", Contribution: confidence},
		},
	}
}

func (s *Scorer) tier(score float64) model.Severity {
	switch {
	case score < s.cfg.LowThreshold:
		return model.SeverityLow
	case score < s.cfg.HighThreshold:
		return model.SeverityMedium
	default:
		return model.SeverityHigh
	}
}

// peakMagnitude scales each member's magnitude by its source's
// normalization constant, caps at 1, and takes the maximum.
func (s *Scorer) peakMagnitude(members []model.CandidateEvent) float64 {
	peak := 0.0
	for _, m := range members {
		scale := s.cfg.MagnitudeScale[string(m.Source)]
		if scale <= 0 {
			scale = 1
		}
		v := m.Magnitude / scale
		if v > 1 {
			v = 1
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

func aggregateConfidence(members []model.CandidateEvent) float64 {
	if len(members) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range members {
		sum += m.Confidence
	}
	return sum / float64(len(members))
}
