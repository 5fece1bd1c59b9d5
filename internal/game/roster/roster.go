// Package roster tracks the running characters of a simulation and serialises
// access to each one's statistics state.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/charstats/internal/game/character"
	"github.com/cory-johannsen/charstats/internal/game/dice"
	"github.com/cory-johannsen/charstats/internal/game/effect"
	"github.com/cory-johannsen/charstats/internal/game/stat"
)

// ErrNotFound is returned when no character with the given ID is registered.
var ErrNotFound = errors.New("character not found")

// HookRunner runs the script hook named on a status effect.
// Implementations must be safe for concurrent use.
type HookRunner interface {
	RunEffectHook(hook, charID, effectID string, magnitude int)
}

type hookEvent struct {
	hook      string
	effectID  string
	magnitude int
}

type entry struct {
	mu      sync.Mutex
	char    *character.Character
	data    *character.Data
	pending []hookEvent
}

// Entry is a detached copy of one registered character and its statistics state.
type Entry struct {
	Character character.Character
	Snapshot  character.Snapshot
}

// Roster is a registry of running characters.
// All methods are safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	entries map[string]*entry

	defs       *effect.Registry
	roller     *dice.Roller
	hooks      HookRunner
	maxWorkers int
	logger     *zap.Logger
}

// New creates an empty Roster resolving effect definitions from defs.
// maxWorkers bounds the goroutines used by AdvanceAll; <= 0 means unbounded.
//
// Precondition: defs and roller must be non-nil.
func New(defs *effect.Registry, roller *dice.Roller, maxWorkers int, logger *zap.Logger) *Roster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roster{
		entries:    make(map[string]*entry),
		defs:       defs,
		roller:     roller,
		maxWorkers: maxWorkers,
		logger:     logger,
	}
}

// SetHookRunner installs the runner for effect script hooks. nil disables hooks.
func (r *Roster) SetHookRunner(h HookRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = h
}

// Add registers c with fresh statistics state built from its base stats.
// An empty c.ID is replaced with a new UUID.
//
// Precondition: c must not be nil.
// Postcondition: Returns the character ID, or an error if the ID is taken or c
// names an unknown stat.
func (r *Roster) Add(c *character.Character) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	data, err := character.New(c, r.logger.With(zap.String("character", c.ID)))
	if err != nil {
		return "", err
	}
	return c.ID, r.register(c, data)
}

// AddSnapshot registers c with statistics state restored from s.
//
// Precondition: c must not be nil and c.ID must be non-empty.
func (r *Roster) AddSnapshot(c *character.Character, s character.Snapshot) error {
	if c.ID == "" {
		return errors.New("restored character must have an id")
	}
	data, err := character.Restore(s, r.logger.With(zap.String("character", c.ID)))
	if err != nil {
		return fmt.Errorf("character %s: %w", c.ID, err)
	}
	return r.register(c, data)
}

func (r *Roster) register(c *character.Character, data *character.Data) error {
	e := &entry{char: c, data: data}
	data.SetHooks(character.Hooks{
		OnApplied: func(se effect.StatusEffect) {
			if se.OnApplyHook != "" {
				e.pending = append(e.pending, hookEvent{se.OnApplyHook, se.ID, se.Magnitude})
			}
		},
		OnRemoved: func(se effect.StatusEffect, _ character.RemovalReason) {
			if se.OnRemoveHook != "" {
				e.pending = append(e.pending, hookEvent{se.OnRemoveHook, se.ID, se.Magnitude})
			}
		},
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[c.ID]; exists {
		return fmt.Errorf("character %q already registered", c.ID)
	}
	r.entries[c.ID] = e
	r.logger.Info("character registered",
		zap.String("character", c.ID),
		zap.String("name", c.Name),
		zap.String("template", c.TemplateID),
	)
	return nil
}

// Remove unregisters the character with the given ID.
//
// Postcondition: Returns ErrNotFound (wrapped) if id is not registered.
func (r *Roster) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("removing %q: %w", id, ErrNotFound)
	}
	delete(r.entries, id)
	return nil
}

// IDs returns the registered character IDs in sorted order.
func (r *Roster) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered characters.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Get returns a detached copy of the character and its current state.
func (r *Roster) Get(id string) (Entry, error) {
	var out Entry
	err := r.With(id, func(c *character.Character, d *character.Data) error {
		out = detach(c, d)
		return nil
	})
	return out, err
}

// With runs fn while holding the character's lock. Script hooks raised by fn
// run after the lock is released.
//
// Postcondition: Returns ErrNotFound (wrapped) if id is not registered,
// otherwise the error returned by fn.
func (r *Roster) With(id string, fn func(c *character.Character, d *character.Data) error) error {
	e, hooks, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	fnErr := fn(e.char, e.data)
	pending := e.takePending()
	e.mu.Unlock()

	r.dispatch(hooks, id, pending)
	return fnErr
}

// Apply applies a caller-built effect to the character.
func (r *Roster) Apply(id string, se effect.StatusEffect) error {
	return r.With(id, func(_ *character.Character, d *character.Data) error {
		return d.Apply(se)
	})
}

// ApplyDef instantiates the named effect definition, rolling its magnitude,
// and applies it to the character.
//
// Postcondition: Returns ErrNotFound (wrapped) for an unknown character, an
// error for an unknown definition, or the error from Apply.
func (r *Roster) ApplyDef(id, defID string) error {
	def, ok := r.defs.Get(defID)
	if !ok {
		return fmt.Errorf("unknown effect definition %q", defID)
	}
	se, err := def.Instantiate(r.roller)
	if err != nil {
		return err
	}
	return r.Apply(id, se)
}

// RemoveEffect removes every active effect with effectID from the character.
func (r *Roster) RemoveEffect(id, effectID string) error {
	return r.With(id, func(_ *character.Character, d *character.Data) error {
		d.Remove(effectID)
		return nil
	})
}

// AttributeValue returns the derived value of a for the character.
func (r *Roster) AttributeValue(id string, a stat.Attribute) (int, error) {
	var v int
	err := r.With(id, func(_ *character.Character, d *character.Data) error {
		v = d.AttributeValue(a)
		return nil
	})
	return v, err
}

// SkillValue returns the derived value of s for the character.
func (r *Roster) SkillValue(id string, s stat.Skill) (int, error) {
	var v int
	err := r.With(id, func(_ *character.Character, d *character.Data) error {
		v = d.SkillValue(s)
		return nil
	})
	return v, err
}

// HasEffect reports whether the character has an active effect with effectID.
func (r *Roster) HasEffect(id, effectID string) (bool, error) {
	var has bool
	err := r.With(id, func(_ *character.Character, d *character.Data) error {
		has = d.HasEffect(effectID)
		return nil
	})
	return has, err
}

// AdvanceAll advances every registered character by dt, one goroutine per
// character, each holding only its own lock.
//
// Postcondition: Returns ctx.Err() if ctx is cancelled before every character
// has been advanced; characters already advanced stay advanced.
func (r *Roster) AdvanceAll(ctx context.Context, dt time.Duration) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	entries := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	hooks := r.hooks
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	if r.maxWorkers > 0 {
		g.SetLimit(r.maxWorkers)
	}
	for i, e := range entries {
		id := ids[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.mu.Lock()
			e.data.Advance(dt)
			pending := e.takePending()
			e.mu.Unlock()

			r.dispatch(hooks, id, pending)
			return nil
		})
	}
	return g.Wait()
}

// Snapshots returns a detached copy of every registered character, sorted by ID.
func (r *Roster) Snapshots() []Entry {
	ids := r.IDs()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		en, err := r.Get(id)
		if err != nil {
			// Removed since IDs was taken.
			continue
		}
		out = append(out, en)
	}
	return out
}

func (r *Roster) lookup(id string) (*entry, HookRunner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, nil, fmt.Errorf("character %q: %w", id, ErrNotFound)
	}
	return e, r.hooks, nil
}

func (r *Roster) dispatch(h HookRunner, id string, events []hookEvent) {
	if h == nil {
		return
	}
	for _, ev := range events {
		r.logger.Debug("dispatching effect hook",
			zap.String("character", id),
			zap.String("hook", ev.hook),
			zap.String("effect", ev.effectID),
		)
		h.RunEffectHook(ev.hook, id, ev.effectID, ev.magnitude)
	}
}

func (e *entry) takePending() []hookEvent {
	p := e.pending
	e.pending = nil
	return p
}

func detach(c *character.Character, d *character.Data) Entry {
	s := d.Snapshot()
	cc := *c
	cc.Attributes = s.Attributes
	cc.Skills = s.Skills
	if c.NPC != nil {
		npc := *c.NPC
		cc.NPC = &npc
	}
	return Entry{Character: cc, Snapshot: d.Snapshot()} // separate maps from cc
}
