// Command clipwright runs the three Q-learning agents against a live
// paperclip game through its element bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/talgya/clipwright/internal/agents"
	"github.com/talgya/clipwright/internal/api"
	"github.com/talgya/clipwright/internal/bridge"
	"github.com/talgya/clipwright/internal/config"
	"github.com/talgya/clipwright/internal/engine"
	"github.com/talgya/clipwright/internal/entropy"
	"github.com/talgya/clipwright/internal/monitor"
	"github.com/talgya/clipwright/internal/persistence"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	slog.SetDefault(cfg.NewLogger(os.Stderr))
	slog.Info("clipwright starting",
		"bridge", cfg.BridgeURL,
		"data_dir", cfg.DataDir,
		"max_iterations", cfg.MaxIterations,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	// ── History database (optional) ──────────────────────────────────
	var db *persistence.DB
	var startIteration uint64
	if cfg.HistoryEnabled() {
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
			os.Exit(1)
		}
		defer db.Close()

		startIteration, err = db.LastIteration()
		if err != nil {
			slog.Warn("last iteration unreadable, numbering from zero", "error", err)
			startIteration = 0
		}
		slog.Info("database opened", "path", cfg.DBPath, "run_id", db.RunID(), "resume_at", startIteration)
	}

	// ── Agents ───────────────────────────────────────────────────────
	seed := cfg.Seed
	if seed == 0 {
		seedCtx, done := context.WithTimeout(context.Background(), 20*time.Second)
		seed = entropy.NewSource(cfg.RandomOrgKey).Seed(seedCtx)
		done()
	}
	slog.Info("random seed", "seed", seed)
	client := bridge.NewClient(cfg.BridgeURL, cfg.BridgeTimeout)

	strategies := []agents.Strategy{agents.NewProduction(), agents.NewResource(), agents.NewPrice()}
	learners := make([]*agents.Agent, 0, len(strategies))
	for i, s := range strategies {
		rng := rand.New(rand.NewSource(seed + int64(i)))
		a := agents.New(s, cfg.Learning, rng, cfg.TablePath(s.Name()), client, client)
		slog.Info("agent ready",
			"agent", a.Name(),
			"table", cfg.TablePath(s.Name()),
			"states", humanize.Comma(int64(a.Engine().Table().Len())),
		)
		learners = append(learners, a)
	}

	// ── Coordinator ──────────────────────────────────────────────────
	coord := engine.New(learners...)
	coord.SetStartIteration(startIteration)
	if cfg.MaxIterations > 0 {
		coord.MaxIterations = startIteration + cfg.MaxIterations
	}
	if err := coord.SetTickDelay(cfg.TickDelay); err != nil {
		slog.Error("invalid tick delay", "error", err)
		os.Exit(1)
	}
	if err := coord.SetCheckpointEvery(cfg.CheckpointEvery); err != nil {
		slog.Error("invalid checkpoint interval", "error", err)
		os.Exit(1)
	}
	if db != nil {
		coord.Recorder = db
	}

	// ── Monitoring ───────────────────────────────────────────────────
	mon := monitor.New(coord.Snapshots(), cfg.SnapshotWindow, cfg.MonitorPoll)
	for _, c := range []struct {
		name, help string
		fn         func() uint64
	}{
		{"observer_failures_total", "Game readings that failed and read as zero.", client.Failures},
		{"rejected_actions_total", "Actions the game did not accept.", client.Rejected},
		{"dropped_snapshots_total", "Snapshots discarded because the monitor was behind.", coord.Dropped},
	} {
		if err := mon.WatchCounter(c.name, c.help, c.fn); err != nil {
			slog.Warn("metric not registered", "metric", c.name, "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monDone := make(chan struct{})
	go func() {
		mon.Run(ctx)
		close(monDone)
	}()

	// ── HTTP API ─────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.APIAddr != "" {
		apiServer = &api.Server{
			Coord:    coord,
			Monitor:  mon,
			DB:       db,
			Bridge:   client,
			Addr:     cfg.APIAddr,
			AdminKey: cfg.AdminKey,
		}
		apiServer.Start()
	}

	// ── Run ──────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		coord.Stop()
	}()

	fmt.Println("Learning... (Ctrl+C to stop)")
	coord.Run(ctx)

	cancel()
	<-monDone

	if apiServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP API shutdown", "error", err)
		}
		done()
	}

	for _, a := range learners {
		slog.Info("agent finished",
			"agent", a.Name(),
			"states", humanize.Comma(int64(a.Engine().Table().Len())),
			"exploration", fmt.Sprintf("%.4f", a.Engine().ExplorationRate()),
		)
	}
	slog.Info("clipwright stopped",
		"iterations", humanize.Comma(int64(coord.Iteration()-startIteration)),
		"observer_failures", client.Failures(),
		"dropped_snapshots", coord.Dropped(),
	)
}
