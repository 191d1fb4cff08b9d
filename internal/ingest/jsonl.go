package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"sentinel/internal/config"
	"sentinel/internal/model"
)

// envelope is the shared shape of every source file: one JSON object per
// line with a timestamp, an optional station, and source-specific data.
type envelope struct {
	Timestamp string                 `json:"timestamp"`
	StationID string                 `json:"station_id"`
	Status    string                 `json:"status"`
	Data      map[string]interface{} `json:"data"`
}

// ReadSources loads the per-source files named in the config. A missing
// or partially unreadable file degrades that one source, never the run.
func ReadSources(cfg config.IngestConfig, logger *slog.Logger) map[model.Source][]model.RawRecord {
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		}
	}
	out := make(map[model.Source][]model.RawRecord, len(cfg.Files))
	for name, path := range cfg.Files {
		source := model.Source(name)
		records, skipped, err := ReadSourceFile(path, source, loc)
		if err != nil {
			if logger != nil {
				logger.Warn("source file unreadable", "source", source, "path", path, "err", err)
			}
			continue
		}
		if skipped > 0 && logger != nil {
			logger.Warn("unparseable lines skipped", "source", source, "skipped", skipped)
		}
		out[source] = records
	}
	return out
}

// ReadSourceFile parses one source file into timestamp-ordered raw
// records. Lines that are not valid JSON or lack a parseable timestamp
// are skipped and counted; field-level validation is the detectors' job.
func ReadSourceFile(path string, source model.Source, loc *time.Location) ([]model.RawRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	records := make([]model.RawRecord, 0)
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			skipped++
			continue
		}
		ts, err := ParseTimestamp(env.Timestamp, loc)
		if err != nil {
			skipped++
			continue
		}
		recs, ok := decodeEnvelope(source, env, ts.UTC())
		if !ok {
			skipped++
			continue
		}
		records = append(records, recs...)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read %s: %w", path, err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, skipped, nil
}

// decodeEnvelope maps one envelope to raw records. Inventory snapshots
// fan out to one record per SKU; every other source yields one record
// keyed by its station.
func decodeEnvelope(source model.Source, env envelope, ts time.Time) ([]model.RawRecord, bool) {
	switch source {
	case model.SourceInventory:
		if len(env.Data) == 0 {
			return nil, false
		}
		recs := make([]model.RawRecord, 0, len(env.Data))
		for sku, v := range env.Data {
			qty, ok := toFloat(v)
			if !ok {
				continue
			}
			recs = append(recs, model.RawRecord{
				Source:    source,
				Timestamp: ts,
				EntityKey: sku,
				Numeric:   map[string]float64{"quantity": qty},
			})
		}
		// Per-SKU order inside one snapshot is map order; make it stable.
		sort.Slice(recs, func(i, j int) bool { return recs[i].EntityKey < recs[j].EntityKey })
		return recs, len(recs) > 0

	case model.SourcePOS:
		rec := model.RawRecord{
			Source:    source,
			Timestamp: ts,
			EntityKey: env.StationID,
			Numeric:   map[string]float64{},
			Attrs: map[string]string{
				"sku":          toString(env.Data["sku"]),
				"customer_id":  toString(env.Data["customer_id"]),
				"product_name": toString(env.Data["product_name"]),
				"barcode":      toString(env.Data["barcode"]),
			},
		}
		if v, ok := toFloat(env.Data["price"]); ok {
			rec.Numeric["price"] = v
		}
		if v, ok := toFloat(env.Data["weight_g"]); ok {
			rec.Numeric["expected_weight"] = v
			rec.Numeric["actual_weight"] = v
		}
		// The scale reading overrides the catalog weight when present.
		if v, ok := toFloat(env.Data["actual_weight_g"]); ok {
			rec.Numeric["actual_weight"] = v
		}
		return []model.RawRecord{rec}, env.StationID != ""

	case model.SourceRecognition:
		rec := model.RawRecord{
			Source:    source,
			Timestamp: ts,
			EntityKey: env.StationID,
			Numeric:   map[string]float64{},
			Attrs: map[string]string{
				"predicted_product": toString(env.Data["predicted_product"]),
			},
		}
		if v, ok := toFloat(env.Data["accuracy"]); ok {
			rec.Numeric["confidence"] = v
		}
		return []model.RawRecord{rec}, env.StationID != ""

	case model.SourceQueue:
		rec := model.RawRecord{
			Source:    source,
			Timestamp: ts,
			EntityKey: env.StationID,
			Numeric:   map[string]float64{},
		}
		if v, ok := toFloat(env.Data["customer_count"]); ok {
			rec.Numeric["customer_count"] = v
		}
		if v, ok := toFloat(env.Data["average_dwell_time"]); ok {
			rec.Numeric["dwell_sec"] = v
		}
		return []model.RawRecord{rec}, env.StationID != ""

	case model.SourceRFID:
		rec := model.RawRecord{
			Source:    source,
			Timestamp: ts,
			EntityKey: env.StationID,
			Attrs: map[string]string{
				"epc":      toString(env.Data["epc"]),
				"location": toString(env.Data["location"]),
				"sku":      toString(env.Data["sku"]),
			},
		}
		return []model.RawRecord{rec}, env.StationID != ""
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		// Some exporters quote numbers.
		var f float64
		_, err := fmt.Sscanf(n, "%g", &f)
		return f, err == nil
	}
	return 0, false
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
