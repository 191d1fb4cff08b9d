package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"time"

	"sentinel/internal/model"
)

// Build finalizes the run's output: assigns stable event IDs, drops any
// event whose group ID was already emitted in this run (an upstream
// correlation bug, surfaced as a warning rather than hidden or fatal),
// and sorts per the ledger invariant.
func Build(events []model.ScoredEvent, logger *slog.Logger) ([]model.ScoredEvent, int) {
	out := make([]model.ScoredEvent, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	dropped := 0
	for _, ev := range events {
		if _, ok := seen[ev.Group.GroupID]; ok {
			dropped++
			if logger != nil {
				logger.Warn("duplicate group id, dropping event",
					"group_id", ev.Group.GroupID,
					"entity_key", ev.Group.EntityKey,
				)
			}
			continue
		}
		seen[ev.Group.GroupID] = struct{}{}
		ev.EventID = EventID(ev.Group.GroupID, ev.Severity)
		out = append(out, ev)
	}

	// Timestamp ascending, then score descending; event ID as the final
	// key so the ordering is total and replays are byte-identical.
	sort.SliceStable(out, func(i, j int) bool {
		ti := out[i].Group.WindowStart.Truncate(time.Millisecond)
		tj := out[j].Group.WindowStart.Truncate(time.Millisecond)
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EventID < out[j].EventID
	})
	return out, dropped
}

func EventID(groupID string, severity model.Severity) string {
	h := sha256.Sum256([]byte(groupID + "|" + string(severity)))
	return hex.EncodeToString(h[:])
}

// Entry is the flat JSONL shape consumed by downstream reporting.
type Entry struct {
	EventID   string         `json:"event_id"`
	EntityKey string         `json:"entity_key"`
	Timestamp string         `json:"timestamp"`
	WindowEnd string         `json:"window_end"`
	Severity  model.Severity `json:"severity"`
	Score     float64        `json:"severity_score"`
	Agreement int            `json:"agreement_count"`
	Sources   []string       `json:"sources"`
	Kinds     []string       `json:"kinds"`
	Rationale []model.Factor `json:"rationale"`
}

func ToEntry(ev model.ScoredEvent) Entry {
	return Entry{
		EventID:   ev.EventID,
		EntityKey: ev.Group.EntityKey,
		Timestamp: ev.Group.WindowStart.UTC().Format(time.RFC3339Nano),
		WindowEnd: ev.Group.WindowEnd.UTC().Format(time.RFC3339Nano),
		Severity:  ev.Severity,
		Score:     ev.Score,
		Agreement: ev.Group.Agreement,
		Sources:   memberSources(ev.Group.Members),
		Kinds:     memberKinds(ev.Group.Members),
		Rationale: ev.Rationale,
	}
}

// WriteJSONL emits one event per line in ledger order.
func WriteJSONL(w io.Writer, events []model.ScoredEvent) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ToEntry(ev)); err != nil {
			return err
		}
	}
	return nil
}

func memberSources(members []model.CandidateEvent) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		s := string(m.Source)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func memberKinds(members []model.CandidateEvent) []string {
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m.Kind]; ok {
			continue
		}
		seen[m.Kind] = struct{}{}
		out = append(out, m.Kind)
	}
	return out
}
