// Package main provides the simulation binary: it loads effect definitions,
// character templates and effect scripts, spawns or restores characters, and
// advances them in simulation time until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/charstats/internal/config"
	"github.com/cory-johannsen/charstats/internal/game/character"
	"github.com/cory-johannsen/charstats/internal/game/dice"
	"github.com/cory-johannsen/charstats/internal/game/effect"
	"github.com/cory-johannsen/charstats/internal/game/roster"
	"github.com/cory-johannsen/charstats/internal/game/stat"
	"github.com/cory-johannsen/charstats/internal/observability"
	"github.com/cory-johannsen/charstats/internal/scripting"
	"github.com/cory-johannsen/charstats/internal/server"
	"github.com/cory-johannsen/charstats/internal/simulation"
	"github.com/cory-johannsen/charstats/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	spawn := flag.String("spawn", "", "comma-separated template IDs to spawn, e.g. warrior,mage")
	apply := flag.String("apply", "", "comma-separated effect IDs applied to every spawned character")
	steps := flag.Int("steps", 0, "run this many steps without waiting and exit (0 = run until interrupted)")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "simulate")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = observability.Sync(logger) }()

	var src dice.Source
	if cfg.Simulation.Seed != 0 {
		src = dice.NewSeededSource(cfg.Simulation.Seed)
	} else {
		src = dice.NewCryptoSource()
	}
	roller := dice.NewRoller(src, logger.Named("dice"))

	contentStart := time.Now()
	defs, err := effect.LoadDirectory(cfg.Content.EffectsDir)
	if err != nil {
		logger.Fatal("loading effect definitions", zap.Error(err))
	}
	templates, err := character.LoadTemplates(cfg.Content.CharactersDir)
	if err != nil {
		logger.Fatal("loading character templates", zap.Error(err))
	}
	logger.Info("content loaded",
		zap.Int("effects", len(defs.All())),
		zap.Int("templates", len(templates)),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	r := roster.New(defs, roller, cfg.Simulation.MaxWorkers, logger.Named("roster"))

	scripts := scripting.NewManager(roller, logger.Named("lua"))
	defer scripts.Close()
	if cfg.Content.ScriptsDir != "" {
		if err := scripts.LoadGlobal(cfg.Content.ScriptsDir, cfg.Scripting.InstructionLimit); err != nil {
			logger.Fatal("loading effect scripts", zap.Error(err))
		}
	}
	simulation.BindScripting(scripts, r)

	var repo *postgres.CharacterRepository
	if cfg.Database.Enabled {
		pool, err := postgres.NewPool(ctx, cfg.Database, logger.Named("postgres"))
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		repo = postgres.NewCharacterRepository(pool)

		stored, err := repo.LoadAll(ctx)
		if err != nil {
			logger.Fatal("loading stored characters", zap.Error(err))
		}
		for _, sc := range stored {
			if err := r.AddSnapshot(sc.Character, sc.Snapshot); err != nil {
				logger.Fatal("restoring character", zap.String("character", sc.Character.ID), zap.Error(err))
			}
		}
		logger.Info("restored characters", zap.Int("count", len(stored)))
	}

	if err := spawnAll(r, templates, splitList(*spawn), splitList(*apply), logger); err != nil {
		logger.Fatal("spawning characters", zap.Error(err))
	}

	stepper := simulation.NewStepper(r, cfg.Simulation.StepInterval, cfg.Simulation.Step, logger.Named("stepper"))

	if *steps > 0 {
		for i := 0; i < *steps; i++ {
			if err := stepper.Step(ctx); err != nil {
				logger.Fatal("simulation step failed", zap.Int("step", i), zap.Error(err))
			}
		}
		if repo != nil {
			saver := simulation.NewAutosaver(r, repo, cfg.Simulation.SaveInterval, logger.Named("autosave"))
			if _, err := saver.SaveAll(ctx); err != nil {
				logger.Error("saving characters", zap.Error(err))
			}
		}
		report(r, logger)
		logger.Info("batch complete",
			zap.Int64("steps", stepper.Steps()),
			zap.Duration("simulated", stepper.Elapsed()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return
	}

	lc := server.NewLifecycle(logger.Named("lifecycle"))
	if repo != nil {
		// Added before the stepper so it stops last and saves the final state.
		lc.Add("autosave", simulation.NewAutosaver(r, repo, cfg.Simulation.SaveInterval, logger.Named("autosave")))
	}
	lc.Add("stepper", stepper)

	logger.Info("simulation ready",
		zap.Int("characters", r.Len()),
		zap.Duration("startup", time.Since(start)),
	)
	if err := lc.Run(ctx); err != nil {
		logger.Error("lifecycle error", zap.Error(err))
	}
	report(r, logger)
}

func spawnAll(r *roster.Roster, templates map[string]*character.Template, ids, effects []string, logger *zap.Logger) error {
	for _, id := range ids {
		tmpl, ok := templates[id]
		if !ok {
			return fmt.Errorf("unknown character template %q", id)
		}
		c, err := character.Build(tmpl, "")
		if err != nil {
			return fmt.Errorf("building %q: %w", id, err)
		}
		charID, err := r.Add(c)
		if err != nil {
			return fmt.Errorf("adding %q: %w", id, err)
		}
		for _, eff := range effects {
			if err := r.ApplyDef(charID, eff); err != nil {
				return fmt.Errorf("applying %q to %s: %w", eff, charID, err)
			}
		}
		logger.Info("spawned character",
			zap.String("template", id),
			zap.String("character", charID),
			zap.Strings("effects", effects),
		)
	}
	return nil
}

func report(r *roster.Roster, logger *zap.Logger) {
	for _, e := range r.Snapshots() {
		fields := []zap.Field{
			zap.String("character", e.Character.ID),
			zap.String("name", e.Character.Name),
			zap.Duration("clock", e.Snapshot.Clock),
			zap.Int("effects", len(e.Snapshot.Effects)),
		}
		for _, a := range stat.Attributes() {
			v, err := r.AttributeValue(e.Character.ID, a)
			if err != nil {
				continue
			}
			fields = append(fields, zap.Int(a.String(), v))
		}
		logger.Info("character state", fields...)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
