package model

import (
	"testing"
	"time"
)

func TestDistance(t *testing.T) {
	base := time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)
	a := CandidateEvent{EntityKey: "SKU_1", Timestamp: base}
	b := CandidateEvent{EntityKey: "SKU_1", Timestamp: base.Add(90 * time.Second)}
	c := CandidateEvent{EntityKey: "SKU_2", Timestamp: base}

	same, gap := Distance(a, b)
	if !same || gap != 90*time.Second {
		t.Fatalf("got same=%v gap=%s", same, gap)
	}
	// Symmetric: order of arguments must not change the gap.
	if _, rev := Distance(b, a); rev != gap {
		t.Fatalf("asymmetric gap: %s vs %s", rev, gap)
	}
	if same, _ := Distance(a, c); same {
		t.Fatalf("different entities reported as same")
	}
	// Sub-millisecond skew rounds away.
	d := CandidateEvent{EntityKey: "SKU_1", Timestamp: base.Add(400 * time.Microsecond)}
	if _, gap := Distance(a, d); gap != 0 {
		t.Fatalf("sub-ms gap should round to zero, got %s", gap)
	}
}
