package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// kafkaEnvelope is the topic's message shape: the file envelope plus a
// source discriminator, since all five streams share one topic.
type kafkaEnvelope struct {
	Source string `json:"source"`
	envelope
}

// CollectKafka drains raw records from the configured topic and returns
// everything read, grouped per source and sorted by timestamp. The drain
// stops when the reader catches up to the high watermark or when the
// drain budget expires; the budget runs on a child context so the
// caller's run context stays live for the pipeline afterwards.
func CollectKafka(ctx context.Context, cfg config.KafkaConfig, timezone string, logger *slog.Logger) map[model.Source][]model.RawRecord {
	if !cfg.Enabled {
		return nil
	}
	if logger != nil {
		logger.Info("kafka intake enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
		MaxWait:  cfg.MaxWait.Std(),
	})
	defer reader.Close()

	drainCtx, cancel := context.WithTimeout(ctx, cfg.DrainBudget.Std())
	defer cancel()

	out := make(map[model.Source][]model.RawRecord)
	skipped := 0
	for {
		m, err := reader.ReadMessage(drainCtx)
		if err != nil {
			if drainCtx.Err() != nil {
				break
			}
			if logger != nil {
				logger.Warn("kafka read error", "err", err)
			}
			continue
		}
		var env kafkaEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			skipped++
			continue
		}
		source := model.Source(env.Source)
		if !knownSource(source) {
			skipped++
			continue
		}
		ts, err := ParseTimestamp(env.Timestamp, loc)
		if err != nil {
			skipped++
			continue
		}
		recs, ok := decodeEnvelope(source, env.envelope, ts.UTC())
		if !ok {
			skipped++
			continue
		}
		out[source] = append(out[source], recs...)
		// Caught up to the high watermark: the window is closed.
		if reader.Lag() == 0 {
			break
		}
	}
	if skipped > 0 && logger != nil {
		logger.Warn("kafka messages skipped", "skipped", skipped)
	}
	for source := range out {
		recs := out[source]
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		})
		out[source] = recs
	}
	return out
}

func knownSource(s model.Source) bool {
	for _, src := range model.Sources {
		if src == s {
			return true
		}
	}
	return false
}
