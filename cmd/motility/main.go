// Command motility walks a single agent across procedurally generated
// terrain, preferring cheap ground, and records its trace and visitation overlay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/deer-motility/internal/api"
	"github.com/talgya/deer-motility/internal/engine"
	"github.com/talgya/deer-motility/internal/entropy"
	"github.com/talgya/deer-motility/internal/persistence"
	"github.com/talgya/deer-motility/internal/world"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	setupLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// setupLogger installs a text handler on terminals and JSON otherwise.
func setupLogger(level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func run(cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := entropy.SeedOrRandom(cfg.Seed)
	rng := entropy.NewSource(seed)
	slog.Info("deer motility simulation", "seed", seed)

	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	// ── World ────────────────────────────────────────────────────────
	gen := world.DefaultGenConfig()
	gen.Length, gen.Width = cfg.Length, cfg.Width
	gen.Seed = seed
	gen.Tileable = cfg.Tileable
	gen = gen.Resolve(rng)
	slog.Info("generating world...",
		"size", fmt.Sprintf("%dx%d", gen.Length, gen.Width),
		"persistence", fmt.Sprintf("%.3f", gen.Persistence),
		"lacunarity", fmt.Sprintf("%.3f", gen.Lacunarity),
		"base", gen.Base,
		"tileable", gen.Tileable,
	)
	grid, err := world.GenerateTerrain(ctx, gen, table)
	if err != nil {
		return err
	}
	classes := table.Classes()
	for i, c := range world.TerrainCounts(grid, table.Len()) {
		slog.Info("terrain", "type", classes[i].Tag, "count", humanize.Comma(int64(c)))
	}

	// ── Session ──────────────────────────────────────────────────────
	sess, err := engine.NewSession(grid, table, engine.Config{
		Steps:      cfg.Steps,
		LightMode:  cfg.Light,
		Perception: cfg.Perception,
	}, rng)
	if err != nil {
		return err
	}
	slog.Info("agent placed", "start", sess.Start(), "perception", cfg.Perception.String(), "light", cfg.Light)

	driver := engine.NewDriver(sess)
	driver.Interval = cfg.Interval

	// ── Database ─────────────────────────────────────────────────────
	var db *persistence.DB
	var runID string
	if cfg.DBPath != "" {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err = persistence.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		r, err := persistence.NewRun(seed, sess)
		if err != nil {
			return err
		}
		if err := db.CreateRun(r); err != nil {
			return err
		}
		runID = r.ID
		slog.Info("database opened", "path", cfg.DBPath, "run", runID)

		driver.CheckpointEvery = cfg.Checkpoint
		driver.OnCheckpoint = func(from int, entries engine.Trace) {
			if err := db.AppendTrace(runID, entries); err != nil {
				slog.Error("checkpoint failed", "from", from, "error", err)
				return
			}
			slog.Debug("checkpoint", "from", from, "entries", len(entries))
		}
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	var apiServer *api.Server
	if cfg.Port > 0 {
		if cfg.AdminKey == "" {
			slog.Warn("MOTILITY_ADMIN_KEY not set, admin POST endpoints will be disabled")
		}
		apiServer = &api.Server{
			Session:  sess,
			Driver:   driver,
			DB:       db,
			RunID:    runID,
			Port:     cfg.Port,
			AdminKey: cfg.AdminKey,
		}
		apiServer.Start()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Port)
	}

	// ── Start ────────────────────────────────────────────────────────
	fmt.Printf("Walking %s steps across a %s world... (Ctrl+C to stop)\n",
		humanize.Comma(int64(cfg.Steps)), grid)

	runErr := driver.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		slog.Info("received signal, shutting down")
		sess.Finish()
		runErr = nil
	}

	// Final save on shutdown.
	if db != nil {
		if err := db.SaveSession(runID, sess); err != nil {
			slog.Error("final save failed", "error", err)
		}
	}
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("API shutdown", "error", err)
		}
	}

	trace := sess.Trace()
	overlay := sess.Overlay()
	fmt.Printf("Walk ended after %s steps: total cost %.2f, %s cells visited.\n",
		humanize.Comma(int64(len(trace))), trace.TotalCost(), humanize.Comma(int64(overlay.VisitedCount())))
	return runErr
}
