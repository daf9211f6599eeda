// Command gardener runs the steward for a clipwright learner.
// It observes the run through the HTTP API, triages bridge and save
// health, and pauses, resumes, slows or checkpoints the run through the
// admin control endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/clipwright/internal/config"
	"github.com/talgya/clipwright/internal/gardener"
)

func main() {
	logCfg := &config.Config{
		LogLevel:  envOrDefault("CLIPWRIGHT_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("CLIPWRIGHT_LOG_FORMAT", "text"),
	}
	slog.SetDefault(logCfg.NewLogger(os.Stderr))

	// Configuration from environment.
	apiURL := envOrDefault("CLIPWRIGHT_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("CLIPWRIGHT_ADMIN_KEY")
	memoryPath := envOrDefault("GARDENER_MEMORY", "data/gardener_memory.json")
	intervalSec := envIntOrDefault("GARDENER_INTERVAL", 60)

	if adminKey == "" {
		slog.Error("CLIPWRIGHT_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second
	policy := gardener.DefaultPolicy()

	slog.Info("clipwright gardener starting",
		"api_url", apiURL,
		"interval", interval,
		"memory", memoryPath,
	)

	observer := gardener.NewObserver(apiURL)
	actor := gardener.NewActor(apiURL, adminKey)
	mem := gardener.LoadMemory(memoryPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("waiting for clipwright API...")
	if !waitForAPI(ctx, apiURL) {
		return
	}

	// Run first cycle immediately.
	runCycle(ctx, policy, observer, actor, mem)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runCycle(ctx, policy, observer, actor, mem)
		case <-ctx.Done():
			fmt.Println("Gardener stopped.")
			return
		}
	}
}

// runCycle executes one observe → triage → decide → act cycle.
func runCycle(ctx context.Context, policy gardener.Policy, observer *gardener.Observer, actor *gardener.Actor, mem *gardener.CycleMemory) {
	snap, err := observer.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}

	health := gardener.Triage(policy, snap, mem.Last())
	slog.Info("observation complete",
		"iteration", snap.Status.Iteration,
		"paused", snap.Status.Paused,
		"failure_rate", fmt.Sprintf("%.2f", health.FailureRate),
		"iters_since_save", health.ItersSinceSave,
		"level", health.Level,
	)

	decision := gardener.Decide(policy, snap, health, mem)
	record := gardener.CycleRecord{
		At:        time.Now().UTC(),
		RunID:     snap.Status.RunID,
		Iteration: snap.Status.Iteration,
		Failures:  snap.Status.ObserverFailures,
		Rejected:  snap.Status.RejectedActions,
		Paused:    snap.Status.Paused,
		Level:     health.Level,
		Action:    decision.Action,
		Rationale: decision.Rationale,
	}

	if decision.Action != gardener.ActionNone {
		result, err := actor.Act(ctx, decision)
		if err != nil {
			slog.Error("control action failed", "action", decision.Action, "error", err)
			record.Action = gardener.ActionNone
		} else {
			slog.Info("control action executed",
				"action", decision.Action,
				"rationale", decision.Rationale,
				"result", result,
			)
		}
	}

	mem.Record(record)
	mem.Save()
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Gives up after 5 minutes or when ctx ends.
func waitForAPI(ctx context.Context, apiURL string) bool {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("clipwright API is ready")
				return true
			}
		}
		if time.Now().After(deadline) {
			slog.Error("clipwright API did not become ready within 5 minutes")
			return false
		}
		slog.Info("clipwright not ready, retrying...", "backoff", backoff)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
