// Package stat defines the closed sets of character attributes and skills and
// the Block that stores their base values.
package stat

import "fmt"

// Attribute is a character's core statistic such as Strength or Health.
type Attribute int

const (
	AttributeDefault Attribute = iota
	Strength
	Dexterity
	Agility
	Attunement
	Health
	MaxHealth
	Mana
	MaxMana
	MaxCarryWeight
	// AttributeMax is the exclusive upper bound of the enumeration. It is never a
	// valid query target.
	AttributeMax
)

var attributeNames = [AttributeMax]string{
	AttributeDefault: "default",
	Strength:         "strength",
	Dexterity:        "dexterity",
	Agility:          "agility",
	Attunement:       "attunement",
	Health:           "health",
	MaxHealth:        "max_health",
	Mana:             "mana",
	MaxMana:          "max_mana",
	MaxCarryWeight:   "max_carry_weight",
}

var allAttributes = []Attribute{
	Strength, Dexterity, Agility, Attunement, Health, MaxHealth, Mana, MaxMana, MaxCarryWeight,
}

// Attributes returns every valid Attribute in ordinal order.
// The returned slice is a copy.
func Attributes() []Attribute {
	out := make([]Attribute, len(allAttributes))
	copy(out, allAttributes)
	return out
}

// Valid reports whether a is a queryable attribute (neither sentinel).
func (a Attribute) Valid() bool {
	return a > AttributeDefault && a < AttributeMax
}

// String returns the lower snake case name of a.
func (a Attribute) String() string {
	if a >= AttributeDefault && a < AttributeMax {
		return attributeNames[a]
	}
	if a == AttributeMax {
		return "max"
	}
	return fmt.Sprintf("attribute(%d)", int(a))
}

// ParseAttribute resolves a lower snake case name to a valid Attribute.
//
// Postcondition: Returns a valid Attribute or a non-nil error.
func ParseAttribute(name string) (Attribute, error) {
	for _, a := range allAttributes {
		if attributeNames[a] == name {
			return a, nil
		}
	}
	return AttributeDefault, fmt.Errorf("unknown attribute %q", name)
}

// Skill is a trainable character capability such as Archery.
type Skill int

const (
	SkillDefault Skill = iota
	Swordplay
	Archery
	Defense
	Elemental
	Restoration
	Athletics
	// SkillMax is the exclusive upper bound of the enumeration.
	SkillMax
)

var skillNames = [SkillMax]string{
	SkillDefault: "default",
	Swordplay:    "swordplay",
	Archery:      "archery",
	Defense:      "defense",
	Elemental:    "elemental",
	Restoration:  "restoration",
	Athletics:    "athletics",
}

var allSkills = []Skill{Swordplay, Archery, Defense, Elemental, Restoration, Athletics}

// Skills returns every valid Skill in ordinal order.
// The returned slice is a copy.
func Skills() []Skill {
	out := make([]Skill, len(allSkills))
	copy(out, allSkills)
	return out
}

// Valid reports whether s is a queryable skill (neither sentinel).
func (s Skill) Valid() bool {
	return s > SkillDefault && s < SkillMax
}

// String returns the lower snake case name of s.
func (s Skill) String() string {
	if s >= SkillDefault && s < SkillMax {
		return skillNames[s]
	}
	if s == SkillMax {
		return "max"
	}
	return fmt.Sprintf("skill(%d)", int(s))
}

// ParseSkill resolves a lower snake case name to a valid Skill.
//
// Postcondition: Returns a valid Skill or a non-nil error.
func ParseSkill(name string) (Skill, error) {
	for _, s := range allSkills {
		if skillNames[s] == name {
			return s, nil
		}
	}
	return SkillDefault, fmt.Errorf("unknown skill %q", name)
}
