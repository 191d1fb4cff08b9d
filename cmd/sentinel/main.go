package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"sentinel/internal/api"
	"sentinel/internal/config"
	"sentinel/internal/ingest"
	"sentinel/internal/ledger"
	"sentinel/internal/logging"
	"sentinel/internal/model"
	"sentinel/internal/pipeline"
	"sentinel/internal/report"
	"sentinel/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to YAML or JSON config")
	outPath := flag.String("out", "", "ledger output path, overrides config (\"-\" for stdout)")
	timeout := flag.Duration("timeout", 0, "hard wall-clock budget for the run")
	flag.Parse()

	cfg := config.DefaultConfig()
	var mgr *config.Manager
	if *configPath != "" {
		var err error
		mgr, err = config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = mgr.Get()
	} else {
		mgr = config.NewManagerFromConfig(cfg)
	}
	if *outPath != "" {
		cfg.Output.Path = *outPath
	}

	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx := ctx
	if *timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	records := ingest.ReadSources(cfg.Ingest, logger)
	if cfg.Ingest.Kafka.Enabled {
		for source, recs := range ingest.CollectKafka(runCtx, cfg.Ingest.Kafka, cfg.Ingest.Timezone, logger) {
			merged := append(records[source], recs...)
			sort.SliceStable(merged, func(i, j int) bool {
				return merged[i].Timestamp.Before(merged[j].Timestamp)
			})
			records[source] = merged
		}
	}
	// Every source participates even when nothing configured it, so
	// empty streams surface as warnings instead of vanishing.
	for _, source := range model.Sources {
		if _, ok := records[source]; !ok {
			records[source] = nil
		}
	}

	pipe := pipeline.New(cfg, logger)
	events, summary, err := pipe.Run(runCtx, records)
	if err != nil {
		logger.Error("run failed, discarding partial results", "err", err)
		os.Exit(1)
	}

	if err := writeLedger(cfg.Output.Path, events); err != nil {
		logger.Error("write ledger", "path", cfg.Output.Path, "err", err)
		os.Exit(1)
	}
	logger.Info("ledger written", "path", cfg.Output.Path, "events", len(events))

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init", "err", err)
		os.Exit(1)
	}
	if store != nil {
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema", "err", err)
			os.Exit(1)
		}
		if err := store.SaveEvents(ctx, events); err != nil {
			logger.Error("storage save events", "err", err)
		}
		if err := store.SaveSummary(ctx, summary); err != nil {
			logger.Error("storage save summary", "err", err)
		}
	}

	if cfg.API.Enabled {
		results := report.NewStore(cfg.Report.LedgerLimit, cfg.Report.SummaryLimit)
		results.SetLedger(events)
		results.AddSummary(summary)
		api.Start(ctx, mgr, results, logger, version)
		<-ctx.Done()
	}
}

func writeLedger(path string, events []model.ScoredEvent) error {
	if path == "-" {
		return ledger.WriteJSONL(os.Stdout, events)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ledger.WriteJSONL(f, events); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
