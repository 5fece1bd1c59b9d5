package character

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/charstats/internal/game/effect"
	"github.com/cory-johannsen/charstats/internal/game/stat"
)

// Snapshot is the serialisable state of a Data: clock, base stats, and every
// active effect with its timestamps.
type Snapshot struct {
	Clock      time.Duration
	Attributes map[string]int
	Skills     map[string]int
	Effects    []effect.StatusEffect
}

// Snapshot captures the current state of d.
//
// Postcondition: Restore(d.Snapshot()) answers every query exactly like d.
func (d *Data) Snapshot() Snapshot {
	return Snapshot{
		Clock:      d.clock,
		Attributes: d.stats.AttributeMap(),
		Skills:     d.stats.SkillMap(),
		Effects:    d.ledger.All(),
	}
}

// Restore rebuilds Data from s without re-applying any effect: periodic
// effects resume from their recorded LastAppliedAt.
//
// Postcondition: Returns Data equivalent to the one s was taken from, or an
// error if s names an unknown stat or carries an invalid effect.
func Restore(s Snapshot, logger *zap.Logger) (*Data, error) {
	block := stat.NewBlock()
	if err := block.LoadMaps(s.Attributes, s.Skills); err != nil {
		return nil, fmt.Errorf("restoring stats: %w", err)
	}
	d := NewData(block, logger)
	d.clock = s.Clock
	for _, e := range s.Effects {
		if _, err := d.ledger.Restore(e); err != nil {
			return nil, fmt.Errorf("restoring effects: %w", err)
		}
	}
	return d, nil
}

// New creates Data holding the base stats of c.
//
// Precondition: c must not be nil.
func New(c *Character, logger *zap.Logger) (*Data, error) {
	block, err := c.StatBlock()
	if err != nil {
		return nil, err
	}
	return NewData(block, logger), nil
}
