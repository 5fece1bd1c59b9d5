// Package effect defines status effects, the ledger that indexes the active
// ones, and the YAML catalogue of effect definitions.
package effect

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cory-johannsen/charstats/internal/game/stat"
)

var (
	// ErrInvalidDuration is returned when a Timed effect has a non-positive duration.
	ErrInvalidDuration = errors.New("timed effect requires a positive duration")
	// ErrInvalidTarget is returned when an effect targets a sentinel or unknown stat.
	ErrInvalidTarget = errors.New("effect target is not a valid attribute or skill")
	// ErrPeriodicSkill is returned when a periodic effect targets a skill.
	// Only attributes accumulate per-second applications.
	ErrPeriodicSkill = errors.New("skill effects cannot be periodic")
)

// Lifetime governs whether and how long an effect stays active after it is applied.
type Lifetime int

const (
	// Instant effects fold their magnitude into the base stat once and are never stored.
	Instant Lifetime = iota
	// Timed effects are active until Duration of simulation time has elapsed.
	Timed
	// Permanent effects are active until removed.
	Permanent
)

// String returns the YAML spelling of l.
func (l Lifetime) String() string {
	switch l {
	case Instant:
		return "instant"
	case Timed:
		return "timed"
	case Permanent:
		return "permanent"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// ParseLifetime resolves the YAML spelling of a Lifetime.
func ParseLifetime(s string) (Lifetime, error) {
	switch s {
	case "instant":
		return Instant, nil
	case "timed":
		return Timed, nil
	case "permanent":
		return Permanent, nil
	default:
		return Instant, fmt.Errorf("unknown lifetime %q", s)
	}
}

// TargetKind distinguishes attribute targets from skill targets.
type TargetKind int

const (
	TargetAttribute TargetKind = iota
	TargetSkill
)

// Target names the single attribute or skill an effect modifies.
// Only the field matching Kind is meaningful.
type Target struct {
	Kind      TargetKind
	Attribute stat.Attribute
	Skill     stat.Skill
}

// AttributeTarget returns a Target for a.
func AttributeTarget(a stat.Attribute) Target {
	return Target{Kind: TargetAttribute, Attribute: a}
}

// SkillTarget returns a Target for s.
func SkillTarget(s stat.Skill) Target {
	return Target{Kind: TargetSkill, Skill: s}
}

// Valid reports whether t names a queryable attribute or skill.
func (t Target) Valid() bool {
	switch t.Kind {
	case TargetAttribute:
		return t.Attribute.Valid()
	case TargetSkill:
		return t.Skill.Valid()
	default:
		return false
	}
}

// String returns "attribute:<name>" or "skill:<name>".
func (t Target) String() string {
	if t.Kind == TargetSkill {
		return "skill:" + t.Skill.String()
	}
	return "attribute:" + t.Attribute.String()
}

// ParseTarget resolves the String form of a Target.
//
// Postcondition: Returns a valid Target or an error.
func ParseTarget(s string) (Target, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok {
		return Target{}, fmt.Errorf("target %q: expected <kind>:<name>", s)
	}
	switch kind {
	case "attribute":
		a, err := stat.ParseAttribute(name)
		if err != nil {
			return Target{}, err
		}
		return AttributeTarget(a), nil
	case "skill":
		sk, err := stat.ParseSkill(name)
		if err != nil {
			return Target{}, err
		}
		return SkillTarget(sk), nil
	default:
		return Target{}, fmt.Errorf("target %q: unknown kind %q", s, kind)
	}
}

// StatusEffect is one modifier applied to a character.
//
// Callers populate every exported field; AddedAt and LastAppliedAt are stamped
// by the Ledger against the owning character's simulation clock.
type StatusEffect struct {
	// ID is the identity used by Has and Remove. Uniqueness among active
	// effects is the caller's responsibility.
	ID        string
	Name      string
	Target    Target
	Magnitude int
	Lifetime  Lifetime
	// Periodic effects fold Magnitude into the base stat once per elapsed
	// simulation second instead of contributing to queries.
	Periodic bool
	// Duration only applies to Timed effects.
	Duration time.Duration

	// Script hooks fired when the effect is applied and removed. Empty disables.
	OnApplyHook  string
	OnRemoveHook string

	addedAt       time.Duration
	lastAppliedAt time.Duration
}

// AddedAt returns the simulation time at which the effect entered the ledger.
func (e StatusEffect) AddedAt() time.Duration { return e.addedAt }

// LastAppliedAt returns the simulation time up to which periodic applications
// have been accounted.
func (e StatusEffect) LastAppliedAt() time.Duration { return e.lastAppliedAt }

// Validate checks the configuration rules enforced at apply time.
//
// Postcondition: Returns nil, ErrInvalidTarget, ErrPeriodicSkill, or
// ErrInvalidDuration (wrapped with the effect ID).
func (e StatusEffect) Validate() error {
	if !e.Target.Valid() {
		return fmt.Errorf("effect %q: %w", e.ID, ErrInvalidTarget)
	}
	if e.Periodic && e.Target.Kind == TargetSkill {
		return fmt.Errorf("effect %q: %w", e.ID, ErrPeriodicSkill)
	}
	if e.Lifetime == Timed && e.Duration <= 0 {
		return fmt.Errorf("effect %q: %w (got %s)", e.ID, ErrInvalidDuration, e.Duration)
	}
	return nil
}

// Stored reports whether e is kept in the ledger after it is applied.
func (e StatusEffect) Stored() bool {
	return e.Lifetime == Timed || e.Lifetime == Permanent
}

// Expired reports whether a Timed effect's lifetime has elapsed at now.
// The boundary is inclusive: an effect expires exactly when Duration has elapsed.
func (e StatusEffect) Expired(now time.Duration) bool {
	return e.Lifetime == Timed && now-e.addedAt >= e.Duration
}

// DuePeriods returns the number of whole seconds elapsed since the last
// periodic application, or 0 for non-periodic effects.
//
// Postcondition: Returns >= 0.
func (e StatusEffect) DuePeriods(now time.Duration) int {
	if !e.Periodic || now <= e.lastAppliedAt {
		return 0
	}
	return int((now - e.lastAppliedAt) / time.Second)
}

// Restored returns a copy of e carrying previously recorded timestamps,
// for rebuilding a ledger from a snapshot.
//
// Precondition: lastAppliedAt >= addedAt for periodic effects.
func Restored(e StatusEffect, addedAt, lastAppliedAt time.Duration) StatusEffect {
	e.addedAt = addedAt
	e.lastAppliedAt = lastAppliedAt
	return e
}
