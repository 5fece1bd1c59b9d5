package effect

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/charstats/internal/game/dice"
	"github.com/cory-johannsen/charstats/internal/game/stat"
)

// Def is the static definition of a status effect, loaded from YAML.
type Def struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Attribute   string        `yaml:"attribute"` // exactly one of attribute | skill
	Skill       string        `yaml:"skill"`
	Magnitude   string        `yaml:"magnitude"` // integer or dice expression, e.g. "-1d4"
	Lifetime    string        `yaml:"lifetime"`  // "instant" | "timed" | "permanent"
	Duration    time.Duration `yaml:"duration"`  // e.g. "10s"; timed only
	Periodic    bool          `yaml:"periodic"`
	LuaOnApply  string        `yaml:"lua_on_apply"`
	LuaOnRemove string        `yaml:"lua_on_remove"`
}

// Target resolves the attribute or skill named by d.
func (d *Def) Target() (Target, error) {
	switch {
	case d.Attribute != "" && d.Skill != "":
		return Target{}, fmt.Errorf("effect %q: attribute and skill are mutually exclusive", d.ID)
	case d.Attribute != "":
		a, err := stat.ParseAttribute(d.Attribute)
		if err != nil {
			return Target{}, fmt.Errorf("effect %q: %w", d.ID, err)
		}
		return AttributeTarget(a), nil
	case d.Skill != "":
		s, err := stat.ParseSkill(d.Skill)
		if err != nil {
			return Target{}, fmt.Errorf("effect %q: %w", d.ID, err)
		}
		return SkillTarget(s), nil
	default:
		return Target{}, fmt.Errorf("effect %q: one of attribute or skill is required", d.ID)
	}
}

// Validate checks every field of d.
//
// Postcondition: Returns nil, or an error describing all violations.
func (d *Def) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if target, err := d.Target(); err != nil {
		errs = append(errs, err)
	} else if d.Periodic && target.Kind == TargetSkill {
		errs = append(errs, fmt.Errorf("effect %q: %w", d.ID, ErrPeriodicSkill))
	}
	if _, err := dice.Parse(d.Magnitude); err != nil {
		errs = append(errs, fmt.Errorf("effect %q: magnitude: %w", d.ID, err))
	}
	lifetime, err := ParseLifetime(d.Lifetime)
	if err != nil {
		errs = append(errs, fmt.Errorf("effect %q: %w", d.ID, err))
	}
	if err == nil && lifetime == Timed && d.Duration <= 0 {
		errs = append(errs, fmt.Errorf("effect %q: %w", d.ID, ErrInvalidDuration))
	}
	return errors.Join(errs...)
}

// Instantiate builds a StatusEffect from d, rolling its magnitude.
//
// Precondition: roller must be non-nil.
// Postcondition: Returns a StatusEffect whose ID is d.ID, or a validation error.
func (d *Def) Instantiate(roller *dice.Roller) (StatusEffect, error) {
	if err := d.Validate(); err != nil {
		return StatusEffect{}, err
	}
	target, _ := d.Target()
	lifetime, _ := ParseLifetime(d.Lifetime)
	result := roller.Roll(dice.MustParse(d.Magnitude))
	return StatusEffect{
		ID:           d.ID,
		Name:         d.Name,
		Target:       target,
		Magnitude:    result.Total(),
		Lifetime:     lifetime,
		Periodic:     d.Periodic,
		Duration:     d.Duration,
		OnApplyHook:  d.LuaOnApply,
		OnRemoveHook: d.LuaOnRemove,
	}, nil
}

// Registry holds all known Defs keyed by ID.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def, overwriting any existing entry with the same ID.
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *Def) {
	r.defs[def.ID] = def
}

// Get returns the Def for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// All returns a snapshot slice of all registered Defs sorted by ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses and validates each as
// a Def, and returns a populated Registry.
//
// Postcondition: Returns a non-nil Registry, or an error naming the first bad file.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading effect dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def Def
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("validating %q: %w", path, err)
		}
		reg.Register(&def)
	}
	return reg, nil
}
