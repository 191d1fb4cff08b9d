package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"sentinel/internal/model"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	Detectors   DetectorsConfig   `json:"detectors" yaml:"detectors"`
	Correlation CorrelationConfig `json:"correlation" yaml:"correlation"`
	Severity    SeverityConfig    `json:"severity" yaml:"severity"`
	Output      OutputConfig      `json:"output" yaml:"output"`
	API         APIConfig         `json:"api" yaml:"api"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Report      ReportConfig      `json:"report" yaml:"report"`
}

type IngestConfig struct {
	Files         map[string]string `json:"files" yaml:"files"`
	Kafka         KafkaConfig       `json:"kafka" yaml:"kafka"`
	Timezone      string            `json:"timezone" yaml:"timezone"`
	ChannelBuffer int               `json:"channel_buffer" yaml:"channel_buffer"`
}

type KafkaConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Brokers     []string `json:"brokers" yaml:"brokers"`
	Topic       string   `json:"topic" yaml:"topic"`
	GroupID     string   `json:"group_id" yaml:"group_id"`
	MaxWait     Duration `json:"max_wait" yaml:"max_wait"`
	DrainBudget Duration `json:"drain_budget" yaml:"drain_budget"`
}

// Duration decodes both "300s" strings and bare nanosecond integers
// from YAML or JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var v interface{}
	if err := value.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v interface{}) error {
	switch t := v.(type) {
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	case float64:
		*d = Duration(time.Duration(t))
		return nil
	case int:
		*d = Duration(time.Duration(t))
		return nil
	case int64:
		*d = Duration(time.Duration(t))
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

type DetectorsConfig struct {
	Inventory   InventoryConfig   `json:"inventory" yaml:"inventory"`
	POS         POSConfig         `json:"pos" yaml:"pos"`
	Recognition RecognitionConfig `json:"recognition" yaml:"recognition"`
	Queue       QueueConfig       `json:"queue" yaml:"queue"`
	RFID        RFIDConfig        `json:"rfid" yaml:"rfid"`
}

type InventoryConfig struct {
	ShrinkageFloorPct float64 `json:"shrinkage_floor_pct" yaml:"shrinkage_floor_pct"`
}

type POSConfig struct {
	WeightTolerancePct float64 `json:"weight_tolerance_pct" yaml:"weight_tolerance_pct"`
	PriceRatioFloor    float64 `json:"price_ratio_floor" yaml:"price_ratio_floor"`
}

type RecognitionConfig struct {
	ConfidenceFloor float64 `json:"confidence_floor" yaml:"confidence_floor"`
}

type QueueConfig struct {
	HighDwellSec    float64 `json:"high_dwell_sec" yaml:"high_dwell_sec"`
	LowDwellSec     float64 `json:"low_dwell_sec" yaml:"low_dwell_sec"`
	CongestionLimit int     `json:"congestion_limit" yaml:"congestion_limit"`
}

type RFIDConfig struct {
	NullStreakMin int `json:"null_streak_min" yaml:"null_streak_min"`
	LocationLimit int `json:"location_limit" yaml:"location_limit"`
}

type CorrelationConfig struct {
	Window Duration `json:"window" yaml:"window"`
}

type SeverityConfig struct {
	Weights        WeightsConfig      `json:"weights" yaml:"weights"`
	LowThreshold   float64            `json:"low_threshold" yaml:"low_threshold"`
	HighThreshold  float64            `json:"high_threshold" yaml:"high_threshold"`
	MagnitudeScale map[string]float64 `json:"magnitude_scale" yaml:"magnitude_scale"`
}

type WeightsConfig struct {
	Agreement  float64 `json:"agreement" yaml:"agreement"`
	Magnitude  float64 `json:"magnitude" yaml:"magnitude"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

type OutputConfig struct {
	Path string `json:"path" yaml:"path"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type ReportConfig struct {
	LedgerLimit  int `json:"ledger_limit" yaml:"ledger_limit"`
	SummaryLimit int `json:"summary_limit" yaml:"summary_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			Files:         map[string]string{},
			Kafka:         KafkaConfig{Enabled: false, MaxWait: Duration(2 * time.Second), DrainBudget: Duration(30 * time.Second)},
			Timezone:      "UTC",
			ChannelBuffer: 10000,
		},
		Detectors: DetectorsConfig{
			Inventory:   InventoryConfig{ShrinkageFloorPct: 5},
			POS:         POSConfig{WeightTolerancePct: 15, PriceRatioFloor: 0.5},
			Recognition: RecognitionConfig{ConfidenceFloor: 0.7},
			Queue:       QueueConfig{HighDwellSec: 300, LowDwellSec: 10, CongestionLimit: 3},
			RFID:        RFIDConfig{NullStreakMin: 10, LocationLimit: 5},
		},
		Correlation: CorrelationConfig{Window: Duration(5 * time.Minute)},
		Severity: SeverityConfig{
			Weights:       WeightsConfig{Agreement: 1.0, Magnitude: 0.5, Confidence: 0.4},
			LowThreshold:  1.6,
			HighThreshold: 2.6,
			MagnitudeScale: map[string]float64{
				string(model.SourceInventory):   0.5,
				string(model.SourcePOS):         1.0,
				string(model.SourceRecognition): 1.0,
				string(model.SourceQueue):       2.0,
				string(model.SourceRFID):        3.0,
			},
		},
		Output:  OutputConfig{Path: "events.jsonl"},
		API:     APIConfig{Enabled: false, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:sentinel.db?_pragma=busy_timeout(5000)"},
		Report:  ReportConfig{LedgerLimit: 5000, SummaryLimit: 100},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = def.Ingest.ChannelBuffer
	}
	if cfg.Ingest.Timezone == "" {
		cfg.Ingest.Timezone = "UTC"
	}
	if cfg.Ingest.Kafka.MaxWait <= 0 {
		cfg.Ingest.Kafka.MaxWait = def.Ingest.Kafka.MaxWait
	}
	if cfg.Ingest.Kafka.DrainBudget <= 0 {
		cfg.Ingest.Kafka.DrainBudget = def.Ingest.Kafka.DrainBudget
	}
	if cfg.Correlation.Window == 0 {
		cfg.Correlation.Window = def.Correlation.Window
	}
	if cfg.Severity.MagnitudeScale == nil {
		cfg.Severity.MagnitudeScale = def.Severity.MagnitudeScale
	}
	for src, scale := range def.Severity.MagnitudeScale {
		if _, ok := cfg.Severity.MagnitudeScale[src]; !ok {
			cfg.Severity.MagnitudeScale[src] = scale
		}
	}
	if cfg.Report.LedgerLimit <= 0 {
		cfg.Report.LedgerLimit = def.Report.LedgerLimit
	}
	if cfg.Report.SummaryLimit <= 0 {
		cfg.Report.SummaryLimit = def.Report.SummaryLimit
	}
	if cfg.Output.Path == "" {
		cfg.Output.Path = def.Output.Path
	}
}

// Validate rejects configurations under which no sane output can be
// produced. Violations here abort the run before any record is read.
func Validate(cfg *Config) error {
	if cfg.Correlation.Window <= 0 {
		return fmt.Errorf("correlation.window must be > 0, got %s", cfg.Correlation.Window)
	}
	if cfg.Severity.LowThreshold >= cfg.Severity.HighThreshold {
		return fmt.Errorf("severity.low_threshold (%.3f) must be < severity.high_threshold (%.3f)",
			cfg.Severity.LowThreshold, cfg.Severity.HighThreshold)
	}
	if cfg.Severity.Weights.Agreement < 0 || cfg.Severity.Weights.Magnitude < 0 || cfg.Severity.Weights.Confidence < 0 {
		return errors.New("severity.weights must be non-negative")
	}
	for src, scale := range cfg.Severity.MagnitudeScale {
		if scale <= 0 {
			return fmt.Errorf("severity.magnitude_scale[%s] must be > 0", src)
		}
	}
	if cfg.Detectors.Inventory.ShrinkageFloorPct <= 0 {
		return errors.New("detectors.inventory.shrinkage_floor_pct must be > 0")
	}
	if cfg.Detectors.POS.WeightTolerancePct <= 0 {
		return errors.New("detectors.pos.weight_tolerance_pct must be > 0")
	}
	if cfg.Detectors.Recognition.ConfidenceFloor <= 0 || cfg.Detectors.Recognition.ConfidenceFloor > 1 {
		return errors.New("detectors.recognition.confidence_floor must be in (0, 1]")
	}
	if cfg.Detectors.Queue.HighDwellSec <= cfg.Detectors.Queue.LowDwellSec {
		return errors.New("detectors.queue.high_dwell_sec must be > low_dwell_sec")
	}
	if cfg.Detectors.RFID.NullStreakMin <= 0 {
		return errors.New("detectors.rfid.null_streak_min must be > 0")
	}
	for src := range cfg.Ingest.Files {
		if !knownSource(src) {
			return fmt.Errorf("ingest.files references unknown source %q", src)
		}
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Storage.Enabled && cfg.Storage.Driver == "" {
		return errors.New("storage.driver required when storage.enabled is true")
	}
	return nil
}

func knownSource(s string) bool {
	for _, src := range model.Sources {
		if string(src) == s {
			return true
		}
	}
	return false
}

// Manager holds the active configuration for components that outlive a
// single run, such as the API server.
type Manager struct {
	path string
	cfg  atomic.Value
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	return m, nil
}

func NewManagerFromConfig(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return nil, errors.New("no config path to reload from")
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	return cfg, nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
