package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/deer-motility/internal/perception"
	"github.com/talgya/deer-motility/internal/terrain"
	"github.com/talgya/deer-motility/internal/world"
)

// Config is the binary's environment-driven configuration.
type Config struct {
	Seed        int64 // 0 = crypto random
	Length      int
	Width       int
	Steps       int
	Terrain     string
	TerrainFile string // JSON column file; overrides Terrain when set
	Light       bool
	Perception  perception.Mode
	Tileable    bool
	DBPath      string // Empty disables persistence
	Port        int    // 0 disables the HTTP API
	AdminKey    string
	Interval    time.Duration
	Checkpoint  int // Steps between trace checkpoints
	LogLevel    slog.Level
}

func defaultConfig() Config {
	gen := world.DefaultGenConfig()
	return Config{
		Length:     gen.Length,
		Width:      gen.Width,
		Steps:      10000,
		Terrain:    "default",
		DBPath:     "data/motility.db",
		Port:       8080,
		Interval:   50 * time.Millisecond,
		Checkpoint: 500,
		LogLevel:   slog.LevelInfo,
	}
}

// loadConfig reads MOTILITY_* variables through getenv, falling back to
// defaults for unset ones. Every malformed variable is reported.
func loadConfig(getenv func(string) string) (Config, error) {
	cfg := defaultConfig()
	var errs []error

	lookup := func(key string) (string, bool) {
		v := strings.TrimSpace(getenv("MOTILITY_" + key))
		return v, v != ""
	}
	intVar := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("MOTILITY_%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolVar := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("MOTILITY_%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	if v, ok := lookup("SEED"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOTILITY_SEED: %w", err))
		}
		cfg.Seed = n
	}
	intVar("LENGTH", &cfg.Length)
	intVar("WIDTH", &cfg.Width)
	intVar("STEPS", &cfg.Steps)
	intVar("PORT", &cfg.Port)
	intVar("CHECKPOINT", &cfg.Checkpoint)
	boolVar("LIGHT", &cfg.Light)
	boolVar("TILEABLE", &cfg.Tileable)

	if v, ok := lookup("TERRAIN"); ok {
		cfg.Terrain = v
	}
	if _, err := terrain.Preset(cfg.Terrain); err != nil {
		errs = append(errs, fmt.Errorf("MOTILITY_TERRAIN: %w", err))
	}
	if v, ok := lookup("TERRAIN_FILE"); ok {
		cfg.TerrainFile = v
	}
	if v, ok := lookup("PERCEPTION"); ok {
		m, err := perception.ParseMode(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOTILITY_PERCEPTION: %w", err))
		}
		cfg.Perception = m
	}
	if v, ok := lookup("INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MOTILITY_INTERVAL: %w", err))
		}
		cfg.Interval = d
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("MOTILITY_LOG_LEVEL: %w", err))
		}
	}
	// MOTILITY_DB=off disables persistence.
	if v, ok := lookup("DB"); ok {
		if v == "none" || v == "off" {
			v = ""
		}
		cfg.DBPath = v
	}
	cfg.AdminKey = getenv("MOTILITY_ADMIN_KEY")

	if err := world.CheckDims(cfg.Length, cfg.Width); err != nil {
		errs = append(errs, err)
	}
	if cfg.Steps <= 0 {
		errs = append(errs, fmt.Errorf("MOTILITY_STEPS must be positive, got %d", cfg.Steps))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("MOTILITY_PORT out of range: %d", cfg.Port))
	}
	return cfg, errors.Join(errs...)
}

// loadTable returns the terrain table cfg selects. A column file that
// disagrees with its feature count falls back to the default table, which
// terrain.Build has already logged.
func loadTable(cfg Config) (*terrain.Table, error) {
	if cfg.TerrainFile == "" {
		return terrain.Preset(cfg.Terrain)
	}
	table, err := terrain.LoadFile(cfg.TerrainFile)
	if errors.Is(err, terrain.ErrConfigurationMismatch) {
		return table, nil
	}
	if err != nil {
		return nil, err
	}
	slog.Info("terrain loaded", "file", cfg.TerrainFile, "classes", table.Len())
	return table, nil
}
