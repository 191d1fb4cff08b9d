package score

import (
	"reflect"
	"testing"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/correlate"
	"sentinel/internal/model"
)

var base = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func testScorer() *Scorer {
	return NewScorer(config.DefaultConfig().Severity)
}

func group(members ...model.CandidateEvent) model.CorrelatedGroup {
	g := model.CorrelatedGroup{
		EntityKey:   members[0].EntityKey,
		WindowStart: members[0].Timestamp,
		WindowEnd:   members[len(members)-1].Timestamp,
		Members:     members,
	}
	g.GroupID = correlate.GroupID(g.EntityKey, g.WindowStart)
	seen := map[model.Source]struct{}{}
	for _, m := range members {
		seen[m.Source] = struct{}{}
	}
	g.Agreement = len(seen)
	return g
}

func TestSingleWeakCandidateScoresLow(t *testing.T) {
	s := testScorer()
	ev := s.Score(group(model.CandidateEvent{
		Source:     model.SourcePOS,
		EntityKey:  "SCC1",
		Timestamp:  base,
		Magnitude:  0.05,
		Confidence: 0.5,
	}))
	if ev.Severity != model.SeverityLow {
		t.Fatalf("severity: got %s (score %.3f), want low", ev.Severity, ev.Score)
	}
}

func TestTwoSourceAgreementAtLeastMedium(t *testing.T) {
	s := testScorer()
	ev := s.Score(group(
		model.CandidateEvent{Source: model.SourceInventory, EntityKey: "SKU_42", Timestamp: base, Magnitude: 0.4, Confidence: 0.8},
		model.CandidateEvent{Source: model.SourcePOS, EntityKey: "SKU_42", Timestamp: base.Add(time.Minute), Magnitude: 0.3, Confidence: 0.85},
	))
	if ev.Severity == model.SeverityLow {
		t.Fatalf("two corroborating sources must not score low (score %.3f)", ev.Score)
	}
}

func TestAgreementMonotonicity(t *testing.T) {
	s := testScorer()
	one := model.CandidateEvent{Source: model.SourcePOS, EntityKey: "SCC1", Timestamp: base, Magnitude: 0.3, Confidence: 0.7}
	two := one
	two.Source = model.SourceQueue
	single := s.Score(group(one))
	double := s.Score(group(one, two))
	if double.Score < single.Score {
		t.Fatalf("more agreement must not lower the score: %.3f < %.3f", double.Score, single.Score)
	}
}

func TestRationaleOrderAndSum(t *testing.T) {
	s := testScorer()
	ev := s.Score(group(
		model.CandidateEvent{Source: model.SourceInventory, EntityKey: "SKU_1", Timestamp: base, Magnitude: 0.2, Confidence: 0.8},
	))
	names := make([]string, 0, len(ev.Rationale))
	sum := 0.0
	for _, f := range ev.Rationale {
		names = append(names, f.Name)
		sum += f.Contribution
	}
	want := []string{"source_agreement", "peak_magnitude", "aggregate_confidence"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("rationale order: %v", names)
	}
	if diff := ev.Score - sum; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("rationale does not account for the score: %.9f vs %.9f", sum, ev.Score)
	}
}

func TestMagnitudeNormalizationCaps(t *testing.T) {
	s := testScorer()
	moderate := s.Score(group(
		model.CandidateEvent{Source: model.SourcePOS, EntityKey: "SCC1", Timestamp: base, Magnitude: 1.0, Confidence: 0.5},
	))
	extreme := s.Score(group(
		model.CandidateEvent{Source: model.SourcePOS, EntityKey: "SCC1", Timestamp: base, Magnitude: 50.0, Confidence: 0.5},
	))
	if extreme.Score != moderate.Score {
		t.Fatalf("magnitude above the scale must cap: %.3f vs %.3f", extreme.Score, moderate.Score)
	}
}

func TestScoringIsDeterministic(t *testing.T) {
	s := testScorer()
	g := group(
		model.CandidateEvent{Source: model.SourceInventory, EntityKey: "SKU_9", Timestamp: base, Magnitude: 0.33, Confidence: 0.8},
		model.CandidateEvent{Source: model.SourceRFID, EntityKey: "SKU_9", Timestamp: base.Add(time.Second), Magnitude: 2.0, Confidence: 0.7},
	)
	a := s.Score(g)
	b := s.Score(g)
	if a.Score != b.Score || a.Severity != b.Severity || !reflect.DeepEqual(a.Rationale, b.Rationale) {
		t.Fatalf("identical group scored differently")
	}
}
