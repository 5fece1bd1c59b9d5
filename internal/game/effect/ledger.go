package effect

import (
	"fmt"
	"slices"
	"time"

	"github.com/cory-johannsen/charstats/internal/game/stat"
)

// Ledger indexes the active (Timed and Permanent) effects of one character by
// identity and by target stat. Both indexes are updated together by every
// mutating method.
//
// Buckets preserve insertion order. It is not safe for concurrent use; the
// caller must serialise access.
type Ledger struct {
	attributes [stat.AttributeMax][]*StatusEffect
	skills     [stat.SkillMax][]*StatusEffect
	byID       map[string][]*StatusEffect
	size       int
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{byID: make(map[string][]*StatusEffect)}
}

// Insert validates e, stamps both timestamps with now, and indexes it.
//
// Precondition: e.Lifetime must be Timed or Permanent.
// Postcondition: Has(e.ID) is true on success; the ledger is unchanged on error.
func (l *Ledger) Insert(e StatusEffect, now time.Duration) (*StatusEffect, error) {
	e.addedAt = now
	e.lastAppliedAt = now
	return l.Restore(e)
}

// Restore indexes e keeping the timestamps it already carries.
//
// Postcondition: Has(e.ID) is true on success; the ledger is unchanged on error.
func (l *Ledger) Restore(e StatusEffect) (*StatusEffect, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if !e.Stored() {
		return nil, fmt.Errorf("effect %q: %s effects are not stored", e.ID, e.Lifetime)
	}
	rec := &e
	b := l.bucket(rec.Target)
	*b = append(*b, rec)
	l.byID[rec.ID] = append(l.byID[rec.ID], rec)
	l.size++
	return rec, nil
}

// MarkApplied advances the periodic accounting timestamp of rec to at.
// Timestamps never move backwards; an earlier at is ignored.
func (l *Ledger) MarkApplied(rec *StatusEffect, at time.Duration) {
	if at > rec.lastAppliedAt {
		rec.lastAppliedAt = at
	}
}

// Remove deletes every record with the given identity.
// If none is present, Remove is a no-op.
//
// Postcondition: Has(id) is false. Returns copies of the removed records.
func (l *Ledger) Remove(id string) []StatusEffect {
	recs, ok := l.byID[id]
	if !ok {
		return nil
	}
	delete(l.byID, id)
	out := make([]StatusEffect, 0, len(recs))
	for _, rec := range recs {
		b := l.bucket(rec.Target)
		*b = slices.DeleteFunc(*b, func(x *StatusEffect) bool { return x == rec })
		out = append(out, *rec)
	}
	l.size -= len(recs)
	return out
}

// Retire deletes exactly rec, leaving other records with the same identity in place.
//
// Postcondition: Returns false if rec was not indexed.
func (l *Ledger) Retire(rec *StatusEffect) bool {
	recs, ok := l.byID[rec.ID]
	if !ok || !slices.Contains(recs, rec) {
		return false
	}
	recs = slices.DeleteFunc(recs, func(x *StatusEffect) bool { return x == rec })
	if len(recs) == 0 {
		delete(l.byID, rec.ID)
	} else {
		l.byID[rec.ID] = recs
	}
	b := l.bucket(rec.Target)
	*b = slices.DeleteFunc(*b, func(x *StatusEffect) bool { return x == rec })
	l.size--
	return true
}

// RemoveAll clears both indexes.
//
// Postcondition: Len() == 0. Returns copies of the removed records in iteration order.
func (l *Ledger) RemoveAll() []StatusEffect {
	out := l.All()
	for i := range l.attributes {
		l.attributes[i] = nil
	}
	for i := range l.skills {
		l.skills[i] = nil
	}
	clear(l.byID)
	l.size = 0
	return out
}

// RemoveTarget deletes every record targeting t. Records targeting other
// stats are untouched.
//
// Postcondition: ActiveFor(t) is empty. Returns copies of the removed records.
func (l *Ledger) RemoveTarget(t Target) []StatusEffect {
	if !t.Valid() {
		return nil
	}
	b := l.bucket(t)
	removed := *b
	*b = nil
	out := make([]StatusEffect, 0, len(removed))
	for _, rec := range removed {
		recs := slices.DeleteFunc(l.byID[rec.ID], func(x *StatusEffect) bool { return x == rec })
		if len(recs) == 0 {
			delete(l.byID, rec.ID)
		} else {
			l.byID[rec.ID] = recs
		}
		out = append(out, *rec)
	}
	l.size -= len(removed)
	return out
}

// Has reports whether any record with the given identity is active.
func (l *Ledger) Has(id string) bool {
	_, ok := l.byID[id]
	return ok
}

// Len returns the number of active records.
func (l *Ledger) Len() int {
	return l.size
}

// Each calls fn for every record targeting t in insertion order.
// fn must not mutate the ledger or the record.
func (l *Ledger) Each(t Target, fn func(*StatusEffect)) {
	if !t.Valid() {
		return
	}
	for _, rec := range *l.bucket(t) {
		fn(rec)
	}
}

// EachActive calls fn for every record: attribute buckets by ordinal, then
// skill buckets by ordinal, each in insertion order.
// fn must not mutate the ledger.
func (l *Ledger) EachActive(fn func(*StatusEffect)) {
	for _, a := range stat.Attributes() {
		for _, rec := range l.attributes[a] {
			fn(rec)
		}
	}
	for _, s := range stat.Skills() {
		for _, rec := range l.skills[s] {
			fn(rec)
		}
	}
}

// ActiveFor returns copies of the records targeting t in insertion order.
func (l *Ledger) ActiveFor(t Target) []StatusEffect {
	var out []StatusEffect
	l.Each(t, func(rec *StatusEffect) { out = append(out, *rec) })
	return out
}

// All returns copies of every record in EachActive order.
func (l *Ledger) All() []StatusEffect {
	out := make([]StatusEffect, 0, l.size)
	l.EachActive(func(rec *StatusEffect) { out = append(out, *rec) })
	return out
}

func (l *Ledger) bucket(t Target) *[]*StatusEffect {
	if t.Kind == TargetSkill {
		return &l.skills[t.Skill]
	}
	return &l.attributes[t.Attribute]
}
