package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"sentinel/internal/model"
	"sentinel/internal/report"
)

var base = time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)

func storedEvent(id string, start time.Time) model.ScoredEvent {
	return model.ScoredEvent{
		EventID: id,
		Group: model.CorrelatedGroup{
			GroupID:     "g-" + id,
			EntityKey:   "SCC1",
			WindowStart: start,
			WindowEnd:   start.Add(time.Minute),
			Agreement:   1,
		},
		Severity: model.SeverityMedium,
		Score:    2.0,
	}
}

func eventsCount(t *testing.T, s *Server, target string) int {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	s.handleEvents(w, req)
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Count
}

func TestEventsLimitAppliesWithSince(t *testing.T) {
	st := report.NewStore(0, 0)
	st.SetLedger([]model.ScoredEvent{
		storedEvent("e1", base),
		storedEvent("e2", base.Add(time.Minute)),
		storedEvent("e3", base.Add(2*time.Minute)),
	})
	s := &Server{store: st}

	if n := eventsCount(t, s, "/events?since=2025-08-13T16:00:00Z"); n != 3 {
		t.Fatalf("since alone: got %d, want 3", n)
	}
	if n := eventsCount(t, s, "/events?since=2025-08-13T16:00:00Z&limit=2"); n != 2 {
		t.Fatalf("since with limit: got %d, want 2", n)
	}
	if n := eventsCount(t, s, "/events?since=2025-08-13T16:01:30Z&limit=5"); n != 1 {
		t.Fatalf("limit above the since count: got %d, want 1", n)
	}
	if n := eventsCount(t, s, "/events?limit=1"); n != 1 {
		t.Fatalf("limit alone: got %d, want 1", n)
	}
}
