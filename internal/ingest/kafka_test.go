package ingest

import (
	"context"
	"testing"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/model"
	"sentinel/internal/pipeline"
)

// An unreachable broker must not stall the drain past its budget, and an
// exhausted budget must not cancel the caller's context: the pipeline
// still runs on whatever the files provided.
func TestKafkaDrainBudgetDoesNotPoisonRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ingest.Kafka = config.KafkaConfig{
		Enabled:     true,
		Brokers:     []string{"127.0.0.1:1"},
		Topic:       "telemetry",
		GroupID:     "sentinel-test",
		MaxWait:     config.Duration(10 * time.Millisecond),
		DrainBudget: config.Duration(50 * time.Millisecond),
	}

	ctx := context.Background()
	out := CollectKafka(ctx, cfg.Ingest.Kafka, "UTC", nil)
	if len(out) != 0 {
		t.Fatalf("unreachable broker yielded records: %v", out)
	}

	base := time.Date(2025, 8, 13, 16, 0, 0, 0, time.UTC)
	records := map[model.Source][]model.RawRecord{
		model.SourceInventory: {
			{Source: model.SourceInventory, Timestamp: base, EntityKey: "SKU_42", Numeric: map[string]float64{"quantity": 100}},
			{Source: model.SourceInventory, Timestamp: base.Add(10 * time.Minute), EntityKey: "SKU_42", Numeric: map[string]float64{"quantity": 50}},
		},
	}
	for _, src := range model.Sources {
		if _, ok := records[src]; !ok {
			records[src] = nil
		}
	}
	for source, recs := range out {
		records[source] = append(records[source], recs...)
	}

	events, _, err := pipeline.New(cfg, nil).Run(ctx, records)
	if err != nil {
		t.Fatalf("run after drain: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected a ledger after the drain budget expired")
	}
}
