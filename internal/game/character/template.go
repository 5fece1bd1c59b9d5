package character

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/charstats/internal/game/stat"
)

// NPCTemplate is the static NPC component of a Template.
type NPCTemplate struct {
	Demeanor       Demeanor `yaml:"demeanor"`
	DefaultRoutine Routine  `yaml:"default_routine"`
	ShopKeeper     bool     `yaml:"shopkeeper"`
	Shop           string   `yaml:"shop"`
	Dialogue       string   `yaml:"dialogue"`
}

// Template is a character archetype loaded from YAML. Stats absent from the
// template keep their defaults.
type Template struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Prefab       string         `yaml:"prefab"`
	Invulnerable bool           `yaml:"invulnerable"`
	Attributes   map[string]int `yaml:"attributes"`
	Skills       map[string]int `yaml:"skills"`
	Visual       Customization  `yaml:"visual"`
	NPC          *NPCTemplate   `yaml:"npc"`
}

// Validate checks every field of t.
//
// Postcondition: Returns nil, or an error describing all violations.
func (t *Template) Validate() error {
	var errs []error
	if t.ID == "" {
		errs = append(errs, errors.New("template id must not be empty"))
	}
	if t.Name == "" {
		errs = append(errs, fmt.Errorf("template %q: name must not be empty", t.ID))
	}
	if err := stat.NewBlock().LoadMaps(t.Attributes, t.Skills); err != nil {
		errs = append(errs, fmt.Errorf("template %q: %w", t.ID, err))
	}
	switch t.Visual.Gender {
	case "", "female", "male":
	default:
		errs = append(errs, fmt.Errorf("template %q: gender must be one of [female, male], got %q", t.ID, t.Visual.Gender))
	}
	if t.NPC != nil {
		switch t.NPC.Demeanor {
		case DemeanorFriendly, DemeanorNeutral, DemeanorHostile:
		default:
			errs = append(errs, fmt.Errorf("template %q: npc.demeanor %q is not valid", t.ID, t.NPC.Demeanor))
		}
		switch t.NPC.DefaultRoutine {
		case RoutineIdle, RoutineWandering, RoutineCombat:
		default:
			errs = append(errs, fmt.Errorf("template %q: npc.default_routine %q is not valid", t.ID, t.NPC.DefaultRoutine))
		}
	}
	return errors.Join(errs...)
}

// Build creates a fresh Character instance from tmpl. Only template fields are
// copied; runtime state (position, target, death) starts zeroed.
// An empty name falls back to the template name.
//
// Precondition: tmpl must not be nil.
// Postcondition: Returns a Character with a new UUID and a full set of base
// stats, or a validation error.
func Build(tmpl *Template, name string) (*Character, error) {
	if tmpl == nil {
		return nil, errors.New("template must not be nil")
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		name = tmpl.Name
	}

	block := stat.NewBlock()
	_ = block.LoadMaps(tmpl.Attributes, tmpl.Skills)

	c := &Character{
		ID:           uuid.NewString(),
		TemplateID:   tmpl.ID,
		Name:         name,
		Prefab:       tmpl.Prefab,
		Invulnerable: tmpl.Invulnerable,
		Rotation:     Quat{W: 1},
		Visual:       tmpl.Visual,
		Attributes:   block.AttributeMap(),
		Skills:       block.SkillMap(),
	}
	if tmpl.NPC != nil {
		c.NPC = &NPC{
			Demeanor:       tmpl.NPC.Demeanor,
			DefaultRoutine: tmpl.NPC.DefaultRoutine,
			CurrentRoutine: tmpl.NPC.DefaultRoutine,
			ShopKeeper:     tmpl.NPC.ShopKeeper,
			Shop:           tmpl.NPC.Shop,
			Dialogue:       tmpl.NPC.Dialogue,
		}
	}
	return c, nil
}

// StatBlock returns a Block holding c's base stats on top of the defaults.
//
// Postcondition: Returns an error if c names an unknown stat.
func (c *Character) StatBlock() (*stat.Block, error) {
	b := stat.NewBlock()
	if err := b.LoadMaps(c.Attributes, c.Skills); err != nil {
		return nil, fmt.Errorf("character %s: %w", c.ID, err)
	}
	return b, nil
}

// SyncStats copies the base values of b back into c.
func (c *Character) SyncStats(b *stat.Block) {
	c.Attributes = b.AttributeMap()
	c.Skills = b.SkillMap()
}

// LoadTemplates reads every *.yaml file in dir as a Template.
//
// Postcondition: Returns templates keyed by ID, or an error naming the first bad file.
func LoadTemplates(dir string) (map[string]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading template dir %q: %w", dir, err)
	}
	out := make(map[string]*Template)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var tmpl Template
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&tmpl); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if err := tmpl.Validate(); err != nil {
			return nil, fmt.Errorf("validating %q: %w", path, err)
		}
		if _, dup := out[tmpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q in %q", tmpl.ID, path)
		}
		out[tmpl.ID] = &tmpl
	}
	return out, nil
}
