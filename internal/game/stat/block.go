package stat

import (
	"fmt"
	"sort"
)

const (
	// DefaultAttributeValue is the starting value of every attribute except MaxCarryWeight.
	DefaultAttributeValue = 10
	// DefaultCarryWeight is the starting value of MaxCarryWeight.
	DefaultCarryWeight = 50
	// DefaultSkillValue is the starting value of every skill.
	DefaultSkillValue = 1
)

// Block holds the base attribute and skill values of one character.
// It is not safe for concurrent use; the caller must serialise access.
type Block struct {
	attributes [AttributeMax]int
	skills     [SkillMax]int

	// Optional observers, invoked after a successful mutation with the new value.
	OnAttributeChanged func(a Attribute, value int)
	OnSkillChanged     func(s Skill, value int)
}

// NewBlock returns a Block populated with default values.
//
// Postcondition: every valid attribute is DefaultAttributeValue except
// MaxCarryWeight (DefaultCarryWeight); every valid skill is DefaultSkillValue.
func NewBlock() *Block {
	b := &Block{}
	for _, a := range allAttributes {
		b.attributes[a] = DefaultAttributeValue
	}
	b.attributes[MaxCarryWeight] = DefaultCarryWeight
	for _, s := range allSkills {
		b.skills[s] = DefaultSkillValue
	}
	return b
}

// Attribute returns the base value of a, or 0 for a sentinel or unknown value.
func (b *Block) Attribute(a Attribute) int {
	if !a.Valid() {
		return 0
	}
	return b.attributes[a]
}

// SetAttribute replaces the base value of a. Sentinel values are ignored.
func (b *Block) SetAttribute(a Attribute, value int) {
	if !a.Valid() {
		return
	}
	b.attributes[a] = value
	if b.OnAttributeChanged != nil {
		b.OnAttributeChanged(a, value)
	}
}

// ModifyAttribute adds delta to the base value of a. Sentinel values are ignored.
func (b *Block) ModifyAttribute(a Attribute, delta int) {
	if !a.Valid() {
		return
	}
	b.SetAttribute(a, b.attributes[a]+delta)
}

// Skill returns the base value of s, or 0 for a sentinel or unknown value.
func (b *Block) Skill(s Skill) int {
	if !s.Valid() {
		return 0
	}
	return b.skills[s]
}

// SetSkill replaces the base value of s. Sentinel values are ignored.
func (b *Block) SetSkill(s Skill, value int) {
	if !s.Valid() {
		return
	}
	b.skills[s] = value
	if b.OnSkillChanged != nil {
		b.OnSkillChanged(s, value)
	}
}

// ModifySkill adds delta to the base value of s. Sentinel values are ignored.
func (b *Block) ModifySkill(s Skill, delta int) {
	if !s.Valid() {
		return
	}
	b.SetSkill(s, b.skills[s]+delta)
}

// AttributeMap returns the base attribute values keyed by name.
func (b *Block) AttributeMap() map[string]int {
	out := make(map[string]int, len(allAttributes))
	for _, a := range allAttributes {
		out[a.String()] = b.attributes[a]
	}
	return out
}

// SkillMap returns the base skill values keyed by name.
func (b *Block) SkillMap() map[string]int {
	out := make(map[string]int, len(allSkills))
	for _, s := range allSkills {
		out[s.String()] = b.skills[s]
	}
	return out
}

// LoadMaps overwrites the named values in b. Names absent from the maps keep
// their current value. Observers are not notified.
//
// Postcondition: Returns an error naming every unknown key; b is unchanged on error.
func (b *Block) LoadMaps(attributes, skills map[string]int) error {
	var unknown []string
	for name := range attributes {
		if _, err := ParseAttribute(name); err != nil {
			unknown = append(unknown, "attribute "+name)
		}
	}
	for name := range skills {
		if _, err := ParseSkill(name); err != nil {
			unknown = append(unknown, "skill "+name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown stats: %v", unknown)
	}
	for name, v := range attributes {
		a, _ := ParseAttribute(name)
		b.attributes[a] = v
	}
	for name, v := range skills {
		s, _ := ParseSkill(name)
		b.skills[s] = v
	}
	return nil
}
