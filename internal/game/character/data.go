package character

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/charstats/internal/game/effect"
	"github.com/cory-johannsen/charstats/internal/game/stat"
)

// RemovalReason records why an effect left the ledger.
type RemovalReason int

const (
	// Removed means the effect was removed explicitly by identity.
	Removed RemovalReason = iota
	// Expired means a Timed effect's duration elapsed during Advance.
	Expired
	// Cleared means the effect was removed by RemoveAll or RemoveAllFor.
	Cleared
)

// String returns the lower case name of r.
func (r RemovalReason) String() string {
	switch r {
	case Removed:
		return "removed"
	case Expired:
		return "expired"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Hooks are optional callbacks fired as effects enter and leave a character.
// OnApplied also fires for Instant effects, which are never stored.
type Hooks struct {
	OnApplied func(e effect.StatusEffect)
	OnRemoved func(e effect.StatusEffect, reason RemovalReason)
}

// Data is the live statistics state of one character: base stats, the ledger
// of active effects, and the simulation clock that ages them.
//
// Data is not safe for concurrent use; the caller must serialise access.
type Data struct {
	stats  *stat.Block
	ledger *effect.Ledger
	clock  time.Duration
	hooks  Hooks
	logger *zap.Logger
}

// NewData creates Data over stats with an empty ledger and a zero clock.
// A nil stats uses default values; a nil logger discards output.
func NewData(stats *stat.Block, logger *zap.Logger) *Data {
	if stats == nil {
		stats = stat.NewBlock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Data{
		stats:  stats,
		ledger: effect.NewLedger(),
		logger: logger,
	}
}

// SetHooks replaces the effect lifecycle callbacks.
func (d *Data) SetHooks(h Hooks) {
	d.hooks = h
}

// Stats returns the underlying base stat store. Mutations through it (for
// example on level up) are visible to subsequent queries.
func (d *Data) Stats() *stat.Block {
	return d.stats
}

// Clock returns the accumulated simulation time.
func (d *Data) Clock() time.Duration {
	return d.clock
}

// Apply applies e according to its lifetime.
//
// Instant effects fold Magnitude into the base stat once and are discarded.
// Timed and Permanent effects are stored; periodic ones also receive their
// first application immediately.
//
// Postcondition: Returns effect.ErrInvalidDuration, effect.ErrInvalidTarget or
// effect.ErrPeriodicSkill (wrapped) without changing any state, or nil.
func (d *Data) Apply(e effect.StatusEffect) error {
	if err := e.Validate(); err != nil {
		d.logger.Debug("rejected status effect",
			zap.String("effect", e.ID),
			zap.Error(err),
		)
		return err
	}

	if !e.Stored() {
		d.modify(e.Target, e.Magnitude)
		applied := effect.Restored(e, d.clock, d.clock)
		d.logger.Debug("applied instant effect",
			zap.String("effect", e.ID),
			zap.Stringer("target", e.Target),
			zap.Int("magnitude", e.Magnitude),
		)
		d.fireApplied(applied)
		return nil
	}

	rec, err := d.ledger.Insert(e, d.clock)
	if err != nil {
		return err
	}
	if rec.Periodic {
		d.modify(rec.Target, rec.Magnitude)
	}
	d.logger.Debug("applied status effect",
		zap.String("effect", rec.ID),
		zap.Stringer("target", rec.Target),
		zap.Int("magnitude", rec.Magnitude),
		zap.Stringer("lifetime", rec.Lifetime),
		zap.Bool("periodic", rec.Periodic),
		zap.Duration("duration", rec.Duration),
		zap.Duration("clock", d.clock),
	)
	d.fireApplied(*rec)
	return nil
}

// Remove removes every active effect with the given identity.
// Removing an absent identity is a no-op.
func (d *Data) Remove(id string) {
	for _, e := range d.ledger.Remove(id) {
		d.fireRemoved(e, Removed)
	}
}

// RemoveAll removes every active effect.
func (d *Data) RemoveAll() {
	for _, e := range d.ledger.RemoveAll() {
		d.fireRemoved(e, Cleared)
	}
}

// RemoveAllFor removes every active effect targeting t, leaving effects on
// other attributes and skills untouched.
func (d *Data) RemoveAllFor(t effect.Target) {
	for _, e := range d.ledger.RemoveTarget(t) {
		d.fireRemoved(e, Cleared)
	}
}

// HasEffect reports whether an effect with the given identity is active.
// Instant effects are never active.
func (d *Data) HasEffect(id string) bool {
	return d.ledger.Has(id)
}

// ActiveEffects returns copies of the active effects targeting t in
// insertion order.
func (d *Data) ActiveEffects(t effect.Target) []effect.StatusEffect {
	return d.ledger.ActiveFor(t)
}

// AllEffects returns copies of every active effect.
func (d *Data) AllEffects() []effect.StatusEffect {
	return d.ledger.All()
}

func (d *Data) modify(t effect.Target, delta int) {
	switch t.Kind {
	case effect.TargetAttribute:
		d.stats.ModifyAttribute(t.Attribute, delta)
	case effect.TargetSkill:
		d.stats.ModifySkill(t.Skill, delta)
	}
}

func (d *Data) fireApplied(e effect.StatusEffect) {
	if d.hooks.OnApplied != nil {
		d.hooks.OnApplied(e)
	}
}

func (d *Data) fireRemoved(e effect.StatusEffect, reason RemovalReason) {
	d.logger.Debug("removed status effect",
		zap.String("effect", e.ID),
		zap.Stringer("reason", reason),
		zap.Duration("clock", d.clock),
	)
	if d.hooks.OnRemoved != nil {
		d.hooks.OnRemoved(e, reason)
	}
}
