package simulation

import (
	"github.com/cory-johannsen/charstats/internal/game/roster"
	"github.com/cory-johannsen/charstats/internal/game/stat"
	"github.com/cory-johannsen/charstats/internal/scripting"
)

// BindScripting connects the engine.* callbacks of m to r and installs m as
// r's hook runner.
//
// Precondition: m and r must be non-nil.
func BindScripting(m *scripting.Manager, r *roster.Roster) {
	m.ApplyEffect = r.ApplyDef
	m.RemoveEffect = r.RemoveEffect
	m.HasEffect = r.HasEffect
	m.AttributeValue = func(uid, name string) (int, error) {
		a, err := stat.ParseAttribute(name)
		if err != nil {
			return 0, err
		}
		return r.AttributeValue(uid, a)
	}
	m.SkillValue = func(uid, name string) (int, error) {
		s, err := stat.ParseSkill(name)
		if err != nil {
			return 0, err
		}
		return r.SkillValue(uid, s)
	}
	r.SetHookRunner(m)
}
