package character

import (
	"time"

	"github.com/cory-johannsen/charstats/internal/game/effect"
)

// Advance moves the simulation clock forward by dt, expires Timed effects whose
// duration has elapsed, and applies periodic effects once per whole elapsed second.
//
// A non-positive dt leaves the clock unchanged; expiry and periodic checks
// still run against the current clock.
//
// Postcondition: no active Timed effect satisfies Clock()-AddedAt() >= Duration.
// Postcondition: every active periodic effect has Clock()-LastAppliedAt() < 1s.
func (d *Data) Advance(dt time.Duration) {
	if dt > 0 {
		d.clock += dt
	}

	// Collect first; the ledger must not change while it is being walked.
	var expired []*effect.StatusEffect
	d.ledger.EachActive(func(rec *effect.StatusEffect) {
		if rec.Expired(d.clock) {
			expired = append(expired, rec)
			return
		}
		n := rec.DuePeriods(d.clock)
		if n == 0 {
			return
		}
		for i := 0; i < n; i++ {
			d.modify(rec.Target, rec.Magnitude)
		}
		d.ledger.MarkApplied(rec, rec.LastAppliedAt()+time.Duration(n)*time.Second)
	})

	for _, rec := range expired {
		if d.ledger.Retire(rec) {
			d.fireRemoved(*rec, Expired)
		}
	}
}
