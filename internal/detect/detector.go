package detect

import (
	"math"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// Stats summarizes one detector pass. Skipped counts records that failed
// validation; they never abort the pass.
type Stats struct {
	Source     model.Source `json:"source"`
	Records    int          `json:"records"`
	Skipped    int          `json:"skipped"`
	Candidates int          `json:"candidates"`
}

// Detector turns one source's time-ordered records into candidate events.
// Implementations are pure: same input, same output, no state carried
// between calls and no knowledge of other sources.
type Detector interface {
	Source() model.Source
	Detect(records []model.RawRecord) ([]model.CandidateEvent, Stats)
}

// All returns the detector set in registration order. Correlation
// tie-breaks for equal timestamps follow this order.
func All(cfg config.DetectorsConfig) []Detector {
	return []Detector{
		&InventoryDetector{Cfg: cfg.Inventory},
		&POSDetector{Cfg: cfg.POS},
		&RecognitionDetector{Cfg: cfg.Recognition},
		&QueueDetector{Cfg: cfg.Queue},
		&RFIDDetector{Cfg: cfg.RFID},
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validRecord checks the fields every source shares. Per-detector numeric
// requirements are layered on top via requireNumeric.
func validRecord(r model.RawRecord) bool {
	return !r.Timestamp.IsZero() && r.EntityKey != ""
}

func requireNumeric(r model.RawRecord, keys ...string) bool {
	for _, k := range keys {
		v, ok := r.Numeric[k]
		if !ok || !finite(v) {
			return false
		}
	}
	return true
}

// groupByEntity partitions records by entity key, preserving the input's
// timestamp order within each entity.
func groupByEntity(records []model.RawRecord) (map[string][]model.RawRecord, []string) {
	byEntity := make(map[string][]model.RawRecord)
	order := make([]string, 0)
	for _, r := range records {
		if _, ok := byEntity[r.EntityKey]; !ok {
			order = append(order, r.EntityKey)
		}
		byEntity[r.EntityKey] = append(byEntity[r.EntityKey], r)
	}
	return byEntity, order
}
