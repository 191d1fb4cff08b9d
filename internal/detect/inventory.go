package detect

import (
	"strconv"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// InventoryDetector flags abrupt per-SKU quantity drops between
// consecutive snapshots. A drop steeper than the configured floor is a
// shrinkage candidate; magnitude is the drop as a fraction of the
// previous quantity, so a 40% drop yields 0.4.
type InventoryDetector struct {
	Cfg config.InventoryConfig
}

func (d *InventoryDetector) Source() model.Source { return model.SourceInventory }

func (d *InventoryDetector) Detect(records []model.RawRecord) ([]model.CandidateEvent, Stats) {
	stats := Stats{Source: d.Source(), Records: len(records)}
	valid := make([]model.RawRecord, 0, len(records))
	for _, r := range records {
		if !validRecord(r) || !requireNumeric(r, "quantity") || r.Numeric["quantity"] < 0 {
			stats.Skipped++
			continue
		}
		valid = append(valid, r)
	}

	out := make([]model.CandidateEvent, 0)
	bySKU, order := groupByEntity(valid)
	for _, sku := range order {
		snaps := bySKU[sku]
		for i := 1; i < len(snaps); i++ {
			prev := snaps[i-1].Numeric["quantity"]
			cur := snaps[i].Numeric["quantity"]
			if prev <= 0 {
				continue
			}
			dropPct := (prev - cur) / prev * 100
			if dropPct <= d.Cfg.ShrinkageFloorPct {
				continue
			}
			out = append(out, model.CandidateEvent{
				Source:     d.Source(),
				Kind:       "inventory_shrinkage",
				EntityKey:  sku,
				Timestamp:  snaps[i].Timestamp,
				Magnitude:  dropPct / 100,
				Confidence: 0.8,
				Evidence: map[string]string{
					"previous_qty": strconv.FormatFloat(prev, 'f', -1, 64),
					"current_qty":  strconv.FormatFloat(cur, 'f', -1, 64),
					"drop_pct":     strconv.FormatFloat(dropPct, 'f', 2, 64),
				},
			})
		}
	}
	stats.Candidates = len(out)
	return out, stats
}
