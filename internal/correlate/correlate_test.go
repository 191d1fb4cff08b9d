package correlate

import (
	"testing"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

var base = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func candidate(src model.Source, entity string, at time.Time) model.CandidateEvent {
	return model.CandidateEvent{
		Source:     src,
		Kind:       "test",
		EntityKey:  entity,
		Timestamp:  at,
		Magnitude:  0.5,
		Confidence: 0.8,
	}
}

func newEngineForTest(window time.Duration) *Engine {
	return NewEngine(config.CorrelationConfig{Window: config.Duration(window)})
}

func TestMergeWithinWindow(t *testing.T) {
	eng := newEngineForTest(300 * time.Second)
	batches := [][]model.CandidateEvent{
		{candidate(model.SourceInventory, "SKU_42", base)},
		{candidate(model.SourcePOS, "SKU_42", base.Add(60*time.Second))},
	}
	groups := eng.Correlate(batches)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Agreement != 2 {
		t.Fatalf("agreement: got %d, want 2", g.Agreement)
	}
	if len(g.Members) != 2 {
		t.Fatalf("members: got %d, want 2", len(g.Members))
	}
	if !g.WindowStart.Equal(base) || !g.WindowEnd.Equal(base.Add(60*time.Second)) {
		t.Fatalf("window [%s, %s]", g.WindowStart, g.WindowEnd)
	}
}

func TestSplitBeyondWindow(t *testing.T) {
	eng := newEngineForTest(300 * time.Second)
	batches := [][]model.CandidateEvent{
		{
			candidate(model.SourcePOS, "SCC1", base),
			candidate(model.SourcePOS, "SCC1", base.Add(400*time.Second)),
		},
	}
	groups := eng.Correlate(batches)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].GroupID == groups[1].GroupID {
		t.Fatalf("split groups share an id")
	}
}

func TestWindowAccretion(t *testing.T) {
	// Each candidate lands within W of the previous one, so the chain
	// stays a single group even though the span exceeds W.
	eng := newEngineForTest(100 * time.Second)
	batch := []model.CandidateEvent{
		candidate(model.SourcePOS, "SCC1", base),
		candidate(model.SourcePOS, "SCC1", base.Add(90*time.Second)),
		candidate(model.SourcePOS, "SCC1", base.Add(180*time.Second)),
	}
	groups := eng.Correlate([][]model.CandidateEvent{batch})
	if len(groups) != 1 {
		t.Fatalf("expected accreted single group, got %d", len(groups))
	}
	if !groups[0].WindowEnd.Equal(base.Add(180 * time.Second)) {
		t.Fatalf("window end not extended: %s", groups[0].WindowEnd)
	}
}

func TestWindowBoundary(t *testing.T) {
	eng := newEngineForTest(300 * time.Second)
	atWindow := eng.Correlate([][]model.CandidateEvent{
		{
			candidate(model.SourcePOS, "SCC1", base),
			candidate(model.SourcePOS, "SCC1", base.Add(300*time.Second)),
		},
	})
	if len(atWindow) != 1 {
		t.Fatalf("gap of exactly the window must join, got %d groups", len(atWindow))
	}
	beyond := eng.Correlate([][]model.CandidateEvent{
		{
			candidate(model.SourcePOS, "SCC1", base),
			candidate(model.SourcePOS, "SCC1", base.Add(300*time.Second+time.Millisecond)),
		},
	})
	if len(beyond) != 2 {
		t.Fatalf("gap one millisecond past the window must split, got %d groups", len(beyond))
	}
}

func TestPartitionInvariant(t *testing.T) {
	eng := newEngineForTest(120 * time.Second)
	batches := [][]model.CandidateEvent{
		{
			candidate(model.SourceInventory, "SKU_1", base),
			candidate(model.SourceInventory, "SKU_2", base.Add(10*time.Second)),
		},
		{
			candidate(model.SourcePOS, "SKU_1", base.Add(30*time.Second)),
			candidate(model.SourcePOS, "SKU_2", base.Add(500*time.Second)),
		},
		{
			candidate(model.SourceQueue, "SCC9", base),
		},
	}
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	groups := eng.Correlate(batches)
	got := 0
	for _, g := range groups {
		got += len(g.Members)
	}
	if got != total {
		t.Fatalf("partition broken: %d members across groups, %d candidates in", got, total)
	}
}

func TestSingleMemberGroupEmitted(t *testing.T) {
	eng := newEngineForTest(300 * time.Second)
	groups := eng.Correlate([][]model.CandidateEvent{
		{candidate(model.SourceRFID, "RFID1", base)},
	})
	if len(groups) != 1 || groups[0].Agreement != 1 {
		t.Fatalf("uncorroborated candidate must still produce a group")
	}
}

func TestEqualTimestampKeepsRegistrationOrder(t *testing.T) {
	eng := newEngineForTest(300 * time.Second)
	batches := [][]model.CandidateEvent{
		{candidate(model.SourceInventory, "SKU_7", base)},
		{candidate(model.SourcePOS, "SKU_7", base)},
	}
	groups := eng.Correlate(batches)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	members := groups[0].Members
	if members[0].Source != model.SourceInventory || members[1].Source != model.SourcePOS {
		t.Fatalf("tie-break order: got %s, %s", members[0].Source, members[1].Source)
	}
}

func TestDeterministicGroupIDs(t *testing.T) {
	eng := newEngineForTest(300 * time.Second)
	batches := [][]model.CandidateEvent{
		{candidate(model.SourceInventory, "SKU_42", base)},
		{candidate(model.SourcePOS, "SKU_42", base.Add(time.Minute))},
	}
	first := eng.Correlate(batches)
	second := eng.Correlate(batches)
	if first[0].GroupID != second[0].GroupID {
		t.Fatalf("group id not reproducible: %s vs %s", first[0].GroupID, second[0].GroupID)
	}
}

func TestEmptyInput(t *testing.T) {
	eng := newEngineForTest(300 * time.Second)
	if groups := eng.Correlate(nil); len(groups) != 0 {
		t.Fatalf("expected no groups for no candidates")
	}
}
