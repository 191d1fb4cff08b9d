package detect

import (
	"strconv"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// QueueDetector watches dwell-time and occupancy measurements per
// station. Very long dwell suggests checkout difficulty or deliberate
// stalling; a near-zero dwell with customers present suggests items
// being walked through without scanning; sustained occupancy above the
// congestion limit is flagged on its own.
type QueueDetector struct {
	Cfg config.QueueConfig
}

func (d *QueueDetector) Source() model.Source { return model.SourceQueue }

func (d *QueueDetector) Detect(records []model.RawRecord) ([]model.CandidateEvent, Stats) {
	stats := Stats{Source: d.Source(), Records: len(records)}
	out := make([]model.CandidateEvent, 0)
	for _, r := range records {
		if !validRecord(r) || !requireNumeric(r, "dwell_sec", "customer_count") {
			stats.Skipped++
			continue
		}
		dwell := r.Numeric["dwell_sec"]
		count := r.Numeric["customer_count"]
		if dwell < 0 || count < 0 {
			stats.Skipped++
			continue
		}
		ev := map[string]string{
			"dwell_sec":      strconv.FormatFloat(dwell, 'f', 1, 64),
			"customer_count": strconv.FormatFloat(count, 'f', 0, 64),
		}
		switch {
		case dwell > d.Cfg.HighDwellSec:
			out = append(out, model.CandidateEvent{
				Source:     d.Source(),
				Kind:       "high_dwell",
				EntityKey:  r.EntityKey,
				Timestamp:  r.Timestamp,
				Magnitude:  dwell/d.Cfg.HighDwellSec - 1,
				Confidence: 0.5,
				Evidence:   ev,
			})
		case dwell < d.Cfg.LowDwellSec && count > 0:
			out = append(out, model.CandidateEvent{
				Source:     d.Source(),
				Kind:       "low_dwell",
				EntityKey:  r.EntityKey,
				Timestamp:  r.Timestamp,
				Magnitude:  (d.Cfg.LowDwellSec - dwell) / d.Cfg.LowDwellSec,
				Confidence: 0.5,
				Evidence:   ev,
			})
		}
		if d.Cfg.CongestionLimit > 0 && int(count) > d.Cfg.CongestionLimit {
			out = append(out, model.CandidateEvent{
				Source:     d.Source(),
				Kind:       "queue_congestion",
				EntityKey:  r.EntityKey,
				Timestamp:  r.Timestamp,
				Magnitude:  count/float64(d.Cfg.CongestionLimit) - 1,
				Confidence: 0.5,
				Evidence:   ev,
			})
		}
	}
	stats.Candidates = len(out)
	return out, stats
}
