package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/claude/repcoach/internal/config"
	"github.com/claude/repcoach/internal/engine"
	"github.com/claude/repcoach/internal/models"
	"github.com/claude/repcoach/internal/replay"
	"github.com/claude/repcoach/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	path := flag.String("path", "", "path to a JSON-lines landmark recording (required)")
	store := flag.Bool("store", false, "write completed sets to the configured database")
	flag.Parse()

	if *path == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcoach-replay -config config.yaml -path session.jsonl [-store]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))

	e, err := engine.New(engine.Config{
		RepCooldown:       cfg.Engine.RepCooldown,
		EmphasisFrames:    cfg.Engine.EmphasisFrames,
		CalibrationTarget: cfg.Engine.CalibrationTarget,
	})
	if err != nil {
		log.Error("invalid engine config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var db storage.Store
	if *store {
		if !cfg.Database.HistoryEnabled() {
			log.Error("-store needs database.driver in the config")
			os.Exit(1)
		}
		db, err = storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), cfg.Database.Path)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("database connected", "driver", cfg.Database.Driver)
	} else {
		log.Info("DRY RUN mode, sets will not be stored")
	}

	rp, err := replay.New(e, db, log, !*store, time.Now())
	if err != nil {
		log.Error("failed to create replayer", "error", err)
		os.Exit(1)
	}
	stats, err := rp.ReplayFile(ctx, *path)
	if err != nil {
		log.Error("replay failed", "error", err)
		if stats != nil {
			printStats(log, stats)
		}
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("replay complete")
}

func printStats(log *slog.Logger, stats *replay.Stats) {
	log.Info("replay stats",
		"lines", stats.Lines,
		"frames", stats.Frames,
		"no_detection", stats.NoDetection,
		"malformed", stats.Malformed,
		"config_changes", stats.ConfigChanges,
		"sets_completed", stats.SetsCompleted,
		"sets_stored", stats.SetsStored,
	)
	for _, mode := range stats.ModeNames() {
		log.Info("reps", "mode", mode, "count", stats.Reps[models.Mode(mode)])
	}
	if len(stats.Warnings) > 0 {
		log.Info("form warnings", "by_label", stats.Warnings)
	}
}
