package detect

import (
	"math"
	"strconv"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// POSDetector inspects point-of-sale transactions for two patterns:
// scale weight outside the per-item tolerance, and a price-per-gram far
// below the SKU's own average, which suggests a cheaper barcode was
// scanned in place of the real one.
type POSDetector struct {
	Cfg config.POSConfig
}

func (d *POSDetector) Source() model.Source { return model.SourcePOS }

func (d *POSDetector) Detect(records []model.RawRecord) ([]model.CandidateEvent, Stats) {
	stats := Stats{Source: d.Source(), Records: len(records)}
	valid := make([]model.RawRecord, 0, len(records))
	for _, r := range records {
		if !validRecord(r) || !requireNumeric(r, "expected_weight", "actual_weight", "price") {
			stats.Skipped++
			continue
		}
		valid = append(valid, r)
	}

	// First pass: mean price-per-gram per SKU, the baseline for swap
	// suspicion. Uses expected weight so a manipulated scale reading
	// cannot hide the swap.
	ppgSum := make(map[string]float64)
	ppgCount := make(map[string]int)
	for _, r := range valid {
		sku := r.Attrs["sku"]
		if sku == "" || r.Numeric["expected_weight"] <= 0 {
			continue
		}
		ppgSum[sku] += r.Numeric["price"] / r.Numeric["expected_weight"]
		ppgCount[sku]++
	}

	out := make([]model.CandidateEvent, 0)
	for _, r := range valid {
		expected := r.Numeric["expected_weight"]
		actual := r.Numeric["actual_weight"]
		price := r.Numeric["price"]
		sku := r.Attrs["sku"]

		if expected > 0 {
			diffPct := math.Abs(expected-actual) / expected * 100
			if diffPct > d.Cfg.WeightTolerancePct {
				out = append(out, model.CandidateEvent{
					Source:     d.Source(),
					Kind:       "weight_discrepancy",
					EntityKey:  r.EntityKey,
					Timestamp:  r.Timestamp,
					Magnitude:  diffPct / 100,
					Confidence: 0.85,
					Evidence: map[string]string{
						"sku":             sku,
						"customer_id":     r.Attrs["customer_id"],
						"expected_weight": strconv.FormatFloat(expected, 'f', -1, 64),
						"actual_weight":   strconv.FormatFloat(actual, 'f', -1, 64),
						"diff_pct":        strconv.FormatFloat(diffPct, 'f', 2, 64),
					},
				})
			}
		}

		if sku != "" && expected > 0 && ppgCount[sku] > 1 {
			avg := ppgSum[sku] / float64(ppgCount[sku])
			if avg > 0 {
				ratio := (price / expected) / avg
				if ratio < d.Cfg.PriceRatioFloor {
					out = append(out, model.CandidateEvent{
						Source:     d.Source(),
						Kind:       "barcode_swap",
						EntityKey:  r.EntityKey,
						Timestamp:  r.Timestamp,
						Magnitude:  1 - ratio,
						Confidence: 0.75,
						Evidence: map[string]string{
							"sku":         sku,
							"customer_id": r.Attrs["customer_id"],
							"price_ratio": strconv.FormatFloat(ratio, 'f', 3, 64),
							"price":       strconv.FormatFloat(price, 'f', 2, 64),
						},
					})
				}
			}
		}
	}
	stats.Candidates = len(out)
	return out, stats
}
