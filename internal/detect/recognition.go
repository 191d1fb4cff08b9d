package detect

import (
	"strconv"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// RecognitionDetector flags product-recognition results whose model
// confidence sits below the configured floor. Magnitude grows linearly
// as confidence falls toward zero: a result at the floor scores 0, a
// result at zero confidence scores 1.
type RecognitionDetector struct {
	Cfg config.RecognitionConfig
}

func (d *RecognitionDetector) Source() model.Source { return model.SourceRecognition }

func (d *RecognitionDetector) Detect(records []model.RawRecord) ([]model.CandidateEvent, Stats) {
	stats := Stats{Source: d.Source(), Records: len(records)}
	out := make([]model.CandidateEvent, 0)
	for _, r := range records {
		if !validRecord(r) || !requireNumeric(r, "confidence") {
			stats.Skipped++
			continue
		}
		conf := r.Numeric["confidence"]
		if conf < 0 || conf > 1 {
			stats.Skipped++
			continue
		}
		if conf >= d.Cfg.ConfidenceFloor {
			continue
		}
		out = append(out, model.CandidateEvent{
			Source:     d.Source(),
			Kind:       "low_confidence",
			EntityKey:  r.EntityKey,
			Timestamp:  r.Timestamp,
			Magnitude:  (d.Cfg.ConfidenceFloor - conf) / d.Cfg.ConfidenceFloor,
			Confidence: 0.6,
			Evidence: map[string]string{
				"predicted_product": r.Attrs["predicted_product"],
				"model_confidence":  strconv.FormatFloat(conf, 'f', 3, 64),
			},
		})
	}
	stats.Candidates = len(out)
	return out, stats
}
