// Package config loads process settings from command-line flags whose
// defaults come from CLIPWRIGHT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/talgya/clipwright/internal/engine"
	"github.com/talgya/clipwright/internal/monitor"
	"github.com/talgya/clipwright/internal/qlearn"
)

// Config is the full set of process settings.
type Config struct {
	BridgeURL     string
	BridgeTimeout time.Duration

	DataDir string
	DBPath  string // empty = <DataDir>/history.db; "-" disables history

	APIAddr  string // empty disables the HTTP API
	AdminKey string

	TickDelay       time.Duration
	CheckpointEvery uint64
	MaxIterations   uint64 // 0 = until stopped
	Seed            int64  // 0 = drawn from RandomOrgKey or crypto/rand
	RandomOrgKey    string

	Learning qlearn.Config

	SnapshotWindow int
	MonitorPoll    time.Duration

	LogLevel  string
	LogFormat string
}

// TablePath returns where the named agent's Q-table is persisted.
func (c *Config) TablePath(agent string) string {
	return filepath.Join(c.DataDir, "q_table_"+agent+".json")
}

// HistoryEnabled reports whether tick history should be recorded.
func (c *Config) HistoryEnabled() bool {
	return c.DBPath != "-"
}

// Load parses args (without the program name) on top of environment
// defaults and validates the result.
func Load(args []string) (*Config, error) {
	def := qlearn.DefaultConfig()
	cfg := &Config{}

	fs := flag.NewFlagSet("clipwright", flag.ContinueOnError)
	fs.StringVar(&cfg.BridgeURL, "bridge-url", envOrDefault("CLIPWRIGHT_BRIDGE_URL", "http://localhost:8765"), "base URL of the game's element bridge")
	fs.DurationVar(&cfg.BridgeTimeout, "bridge-timeout", envDurationOrDefault("CLIPWRIGHT_BRIDGE_TIMEOUT", 2*time.Second), "timeout for a single bridge request")
	fs.StringVar(&cfg.DataDir, "data-dir", envOrDefault("CLIPWRIGHT_DATA_DIR", "data"), "directory holding the Q-table files")
	fs.StringVar(&cfg.DBPath, "db", envOrDefault("CLIPWRIGHT_DB_PATH", ""), "tick history database (default <data-dir>/history.db, - to disable)")
	fs.StringVar(&cfg.APIAddr, "api-addr", envOrDefault("CLIPWRIGHT_API_ADDR", ":8080"), "HTTP API listen address (empty to disable)")
	fs.StringVar(&cfg.AdminKey, "admin-key", envOrDefault("CLIPWRIGHT_ADMIN_KEY", ""), "bearer token for control endpoints")
	fs.DurationVar(&cfg.TickDelay, "tick-delay", envDurationOrDefault("CLIPWRIGHT_TICK_DELAY", engine.DefaultTickDelay), "wait between acting and re-observing")
	fs.Uint64Var(&cfg.CheckpointEvery, "checkpoint-every", envUintOrDefault("CLIPWRIGHT_CHECKPOINT_EVERY", engine.DefaultCheckpointEvery), "save tables every N iterations")
	fs.Uint64Var(&cfg.MaxIterations, "max-iterations", envUintOrDefault("CLIPWRIGHT_MAX_ITERATIONS", 0), "stop after N iterations (0 = run until stopped)")
	fs.Int64Var(&cfg.Seed, "seed", envInt64OrDefault("CLIPWRIGHT_SEED", 0), "random seed (0 = draw one)")
	fs.StringVar(&cfg.RandomOrgKey, "random-org-key", envOrDefault("CLIPWRIGHT_RANDOM_ORG_KEY", ""), "random.org API key used to draw the seed")
	fs.Float64Var(&cfg.Learning.LearningRate, "learning-rate", envFloatOrDefault("CLIPWRIGHT_LEARNING_RATE", def.LearningRate), "alpha")
	fs.Float64Var(&cfg.Learning.DiscountFactor, "discount", envFloatOrDefault("CLIPWRIGHT_DISCOUNT", def.DiscountFactor), "gamma")
	fs.Float64Var(&cfg.Learning.ExplorationRate, "exploration", envFloatOrDefault("CLIPWRIGHT_EXPLORATION", def.ExplorationRate), "initial epsilon")
	fs.Float64Var(&cfg.Learning.MinExplorationRate, "min-exploration", envFloatOrDefault("CLIPWRIGHT_MIN_EXPLORATION", def.MinExplorationRate), "epsilon floor")
	fs.Float64Var(&cfg.Learning.ExplorationDecay, "exploration-decay", envFloatOrDefault("CLIPWRIGHT_EXPLORATION_DECAY", def.ExplorationDecay), "epsilon multiplier per tick")
	fs.IntVar(&cfg.SnapshotWindow, "snapshot-window", envIntOrDefault("CLIPWRIGHT_SNAPSHOT_WINDOW", monitor.DefaultWindow), "points kept per monitored series")
	fs.DurationVar(&cfg.MonitorPoll, "monitor-poll", envDurationOrDefault("CLIPWRIGHT_MONITOR_POLL", monitor.DefaultPoll), "how often the monitor drains snapshots")
	fs.StringVar(&cfg.LogLevel, "log-level", envOrDefault("CLIPWRIGHT_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", envOrDefault("CLIPWRIGHT_LOG_FORMAT", "text"), "text or json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "history.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.BridgeURL == "" {
		errs = append(errs, errors.New("bridge URL is required"))
	}
	if c.BridgeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("bridge timeout %v must be positive", c.BridgeTimeout))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is required"))
	}
	if c.TickDelay < 0 {
		errs = append(errs, fmt.Errorf("tick delay %v must not be negative", c.TickDelay))
	}
	if c.CheckpointEvery == 0 {
		errs = append(errs, errors.New("checkpoint interval must be positive"))
	}
	if c.SnapshotWindow <= 0 {
		errs = append(errs, fmt.Errorf("snapshot window %d must be positive", c.SnapshotWindow))
	}
	if c.MonitorPoll <= 0 {
		errs = append(errs, fmt.Errorf("monitor poll %v must be positive", c.MonitorPoll))
	}
	if err := c.Learning.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.LogFormat))
	}
	return errors.Join(errs...)
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

func envInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func envUintOrDefault(key string, defaultVal uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are milliseconds.
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
