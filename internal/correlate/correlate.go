package correlate

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// Engine performs the windowed cross-source join. It is single-pass and
// single-threaded: the sweep exclusively owns its open-group state, so
// no locking is involved.
type Engine struct {
	window time.Duration
}

func NewEngine(cfg config.CorrelationConfig) *Engine {
	return &Engine{window: cfg.Window.Std()}
}

// Correlate merges candidate batches (one per detector, in registration
// order), sorts them by (entity_key, timestamp), and sweeps once with an
// accreting window: a candidate joins the entity's open group when it
// lands within the window of the group's current end, and the end then
// extends to the candidate's timestamp. Ties on equal timestamps keep
// the registration order of their detectors.
//
// Every candidate lands in exactly one group; a group with a single
// member is still emitted, since missing corroboration only lowers
// severity, it does not disqualify the detection.
func (e *Engine) Correlate(batches [][]model.CandidateEvent) []model.CorrelatedGroup {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	merged := make([]model.CandidateEvent, 0, total)
	for _, b := range batches {
		merged = append(merged, b...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].EntityKey != merged[j].EntityKey {
			return merged[i].EntityKey < merged[j].EntityKey
		}
		ti := merged[i].Timestamp.Truncate(time.Millisecond)
		tj := merged[j].Timestamp.Truncate(time.Millisecond)
		return ti.Before(tj)
	})

	groups := make([]model.CorrelatedGroup, 0)
	var open *model.CorrelatedGroup
	for _, c := range merged {
		if open != nil {
			// The last member's timestamp is the group's current end,
			// since candidates arrive entity-by-entity in time order.
			last := open.Members[len(open.Members)-1]
			if same, gap := model.Distance(last, c); same && gap <= e.window {
				open.Members = append(open.Members, c)
				if c.Timestamp.After(open.WindowEnd) {
					open.WindowEnd = c.Timestamp
				}
				continue
			}
			groups = append(groups, seal(*open))
		}
		open = &model.CorrelatedGroup{
			EntityKey:   c.EntityKey,
			WindowStart: c.Timestamp,
			WindowEnd:   c.Timestamp,
			Members:     []model.CandidateEvent{c},
		}
	}
	if open != nil {
		groups = append(groups, seal(*open))
	}
	return groups
}

func seal(g model.CorrelatedGroup) model.CorrelatedGroup {
	g.GroupID = GroupID(g.EntityKey, g.WindowStart)
	g.Agreement = distinctSources(g.Members)
	return g
}

// GroupID is a deterministic hash of the entity and the window start, so
// replaying the same input reproduces the same IDs.
func GroupID(entityKey string, windowStart time.Time) string {
	h := sha256.Sum256([]byte(entityKey + "|" + windowStart.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h[:])
}

func distinctSources(members []model.CandidateEvent) int {
	seen := make(map[model.Source]struct{}, len(members))
	for _, m := range members {
		seen[m.Source] = struct{}{}
	}
	return len(seen)
}
