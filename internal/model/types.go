package model

import "time"

// Source identifies which telemetry stream a record or candidate came from.
type Source string

const (
	SourceInventory   Source = "inventory"
	SourcePOS         Source = "pos"
	SourceRecognition Source = "recognition"
	SourceQueue       Source = "queue"
	SourceRFID        Source = "rfid"
)

// Sources lists all known sources in detector-registration order. The
// correlation tie-break for equal timestamps follows this order.
var Sources = []Source{SourceInventory, SourcePOS, SourceRecognition, SourceQueue, SourceRFID}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RawRecord is one already-parsed row from a source stream. Entity key
// semantics depend on the source: product SKU for inventory and RFID,
// station ID for POS, recognition and queue.
type RawRecord struct {
	Source    Source             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	EntityKey string             `json:"entity_key"`
	Numeric   map[string]float64 `json:"numeric,omitempty"`
	Attrs     map[string]string  `json:"attrs,omitempty"`
}

// CandidateEvent is a single detector's unconfirmed anomaly. Immutable
// once emitted; consumed only by the correlation sweep.
type CandidateEvent struct {
	Source     Source            `json:"source"`
	Kind       string            `json:"kind"`
	EntityKey  string            `json:"entity_key"`
	Timestamp  time.Time         `json:"timestamp"`
	Magnitude  float64           `json:"magnitude"`
	Confidence float64           `json:"confidence"`
	Evidence   map[string]string `json:"evidence,omitempty"`
}

// CorrelatedGroup clusters candidates believed to describe one incident.
// Append-only while the sweep holds it open, immutable after close.
type CorrelatedGroup struct {
	GroupID     string           `json:"group_id"`
	EntityKey   string           `json:"entity_key"`
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Members     []CandidateEvent `json:"members"`
	Agreement   int              `json:"agreement_count"`
}

// Factor is one scored contribution in a ScoredEvent rationale.
type Factor struct {
	Name         string  `json:"factor"`
	Contribution float64 `json:"contribution"`
}

// ScoredEvent is a closed group annotated with severity. EventID is
// assigned by the ledger builder, not the scorer.
type ScoredEvent struct {
	EventID   string          `json:"event_id"`
	Group     CorrelatedGroup `json:"group"`
	Severity  Severity        `json:"severity"`
	Score     float64         `json:"severity_score"`
	Rationale []Factor        `json:"rationale"`
}

// Distance reports whether two candidates refer to the same entity and
// the absolute gap between their timestamps at millisecond resolution.
func Distance(a, b CandidateEvent) (sameEntity bool, gap time.Duration) {
	gap = a.Timestamp.Sub(b.Timestamp).Round(time.Millisecond)
	if gap < 0 {
		gap = -gap
	}
	return a.EntityKey == b.EntityKey, gap
}
