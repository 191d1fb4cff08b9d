package detect

import (
	"strconv"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// RFIDDetector covers two failure modes of the tag infrastructure. A run
// of consecutive null EPC reads at one station means items are passing
// the antenna without a readable tag, which is how detagged merchandise
// leaves the store. A single tag read across many distinct locations
// means the item is being carried around the floor, a staging pattern.
type RFIDDetector struct {
	Cfg config.RFIDConfig
}

func (d *RFIDDetector) Source() model.Source { return model.SourceRFID }

type nullStreak struct {
	start model.RawRecord
	count int
}

func (d *RFIDDetector) Detect(records []model.RawRecord) ([]model.CandidateEvent, Stats) {
	stats := Stats{Source: d.Source(), Records: len(records)}
	valid := make([]model.RawRecord, 0, len(records))
	for _, r := range records {
		if !validRecord(r) {
			stats.Skipped++
			continue
		}
		valid = append(valid, r)
	}

	out := make([]model.CandidateEvent, 0)

	// Null-read streaks, tracked per station so one healthy antenna
	// cannot reset another's streak.
	streaks := make(map[string]*nullStreak)
	stationOrder := make([]string, 0)
	flush := func(station string) {
		s := streaks[station]
		if s == nil {
			return
		}
		delete(streaks, station)
		if s.count < d.Cfg.NullStreakMin {
			return
		}
		out = append(out, model.CandidateEvent{
			Source:     d.Source(),
			Kind:       "rfid_gap",
			EntityKey:  station,
			Timestamp:  s.start.Timestamp,
			Magnitude:  float64(s.count) / float64(d.Cfg.NullStreakMin),
			Confidence: 0.7,
			Evidence: map[string]string{
				"null_reads": strconv.Itoa(s.count),
			},
		})
	}
	for _, r := range valid {
		if r.Attrs["epc"] == "" {
			if s, ok := streaks[r.EntityKey]; ok {
				s.count++
			} else {
				streaks[r.EntityKey] = &nullStreak{start: r, count: 1}
				stationOrder = append(stationOrder, r.EntityKey)
			}
			continue
		}
		flush(r.EntityKey)
	}
	for _, station := range stationOrder {
		flush(station)
	}

	// Tag journeys: distinct locations visited per EPC.
	type journey struct {
		sku       string
		last      model.RawRecord
		locations map[string]struct{}
	}
	journeys := make(map[string]*journey)
	epcOrder := make([]string, 0)
	for _, r := range valid {
		epc := r.Attrs["epc"]
		if epc == "" {
			continue
		}
		j, ok := journeys[epc]
		if !ok {
			j = &journey{locations: make(map[string]struct{})}
			journeys[epc] = j
			epcOrder = append(epcOrder, epc)
		}
		if r.Attrs["sku"] != "" {
			j.sku = r.Attrs["sku"]
		}
		if loc := r.Attrs["location"]; loc != "" {
			j.locations[loc] = struct{}{}
		}
		j.last = r
	}
	for _, epc := range epcOrder {
		j := journeys[epc]
		if d.Cfg.LocationLimit <= 0 || len(j.locations) <= d.Cfg.LocationLimit {
			continue
		}
		entity := j.sku
		if entity == "" {
			entity = epc
		}
		out = append(out, model.CandidateEvent{
			Source:     d.Source(),
			Kind:       "tag_roaming",
			EntityKey:  entity,
			Timestamp:  j.last.Timestamp,
			Magnitude:  float64(len(j.locations)) / float64(d.Cfg.LocationLimit),
			Confidence: 0.7,
			Evidence: map[string]string{
				"epc":       epc,
				"locations": strconv.Itoa(len(j.locations)),
			},
		})
	}

	stats.Candidates = len(out)
	return out, stats
}
