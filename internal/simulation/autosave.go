package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/charstats/internal/game/character"
	"github.com/cory-johannsen/charstats/internal/game/roster"
)

// SnapshotStore persists one character together with its statistics state.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, c *character.Character, s character.Snapshot) error
}

// Snapshotter lists detached copies of every tracked character.
type Snapshotter interface {
	Snapshots() []roster.Entry
}

// finalSaveTimeout bounds the save performed after Run's context is cancelled.
const finalSaveTimeout = 5 * time.Second

// Autosaver writes every character to a SnapshotStore once per interval and
// once more on shutdown.
type Autosaver struct {
	src      Snapshotter
	store    SnapshotStore
	interval time.Duration
	logger   *zap.Logger
}

// NewAutosaver creates an Autosaver.
//
// Precondition: src and store must be non-nil; interval must be > 0.
func NewAutosaver(src Snapshotter, store SnapshotStore, interval time.Duration, logger *zap.Logger) *Autosaver {
	if interval <= 0 {
		panic("simulation.NewAutosaver: interval must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{src: src, store: store, interval: interval, logger: logger}
}

// SaveAll saves every character, continuing past individual failures.
//
// Postcondition: Returns the number saved and every failure joined, or nil.
func (a *Autosaver) SaveAll(ctx context.Context) (int, error) {
	var errs []error
	saved := 0
	for _, en := range a.src.Snapshots() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		c := en.Character
		if err := a.store.SaveSnapshot(ctx, &c, en.Snapshot); err != nil {
			errs = append(errs, fmt.Errorf("saving character %s: %w", c.ID, err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Run saves once per interval until ctx is cancelled, then performs a final save.
//
// Postcondition: Returns the error of the final save, if any.
func (a *Autosaver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
			defer cancel()
			n, err := a.SaveAll(final)
			a.logger.Info("final save complete", zap.Int("characters", n))
			return err
		case <-ticker.C:
			n, err := a.SaveAll(ctx)
			if err != nil {
				a.logger.Warn("autosave failed", zap.Int("saved", n), zap.Error(err))
				continue
			}
			a.logger.Debug("autosave complete", zap.Int("characters", n))
		}
	}
}
