package character

import (
	"github.com/cory-johannsen/charstats/internal/game/effect"
	"github.com/cory-johannsen/charstats/internal/game/stat"
)

// AttributeValue returns the base value of a plus the magnitude of every
// non-periodic active effect on it, never below 0. Periodic effects have
// already been folded into the base value.
//
// Postcondition: Returns >= 0; returns 0 for sentinel attributes.
func (d *Data) AttributeValue(a stat.Attribute) int {
	if !a.Valid() {
		return 0
	}
	return d.derived(d.stats.Attribute(a), effect.AttributeTarget(a))
}

// SkillValue returns the base value of s plus the magnitude of every
// non-periodic active effect on it, never below 0.
//
// Postcondition: Returns >= 0; returns 0 for sentinel skills.
func (d *Data) SkillValue(s stat.Skill) int {
	if !s.Valid() {
		return 0
	}
	return d.derived(d.stats.Skill(s), effect.SkillTarget(s))
}

func (d *Data) derived(base int, t effect.Target) int {
	value := base
	d.ledger.Each(t, func(rec *effect.StatusEffect) {
		if !rec.Periodic {
			value += rec.Magnitude
		}
	})
	return max(value, 0)
}
