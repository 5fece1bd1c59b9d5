package character_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/charstats/internal/game/character"
	"github.com/cory-johannsen/charstats/internal/game/effect"
	"github.com/cory-johannsen/charstats/internal/game/stat"
)

func newData(t *testing.T, setup func(b *stat.Block)) *character.Data {
	b := stat.NewBlock()
	if setup != nil {
		setup(b)
	}
	return character.NewData(b, zaptest.NewLogger(t))
}

func zeroHealth(b *stat.Block) { b.SetAttribute(stat.Health, 0) }

func regen(duration time.Duration) effect.StatusEffect {
	return effect.StatusEffect{
		ID:        "regen",
		Target:    effect.AttributeTarget(stat.Health),
		Magnitude: 1,
		Lifetime:  effect.Timed,
		Periodic:  true,
		Duration:  duration,
	}
}

func agilityBuff(id string, magnitude int, lifetime effect.Lifetime) effect.StatusEffect {
	return effect.StatusEffect{
		ID:        id,
		Target:    effect.AttributeTarget(stat.Agility),
		Magnitude: magnitude,
		Lifetime:  lifetime,
		Duration:  10 * time.Second,
	}
}

func archeryBuff(id string, magnitude int) effect.StatusEffect {
	return effect.StatusEffect{
		ID:        id,
		Target:    effect.SkillTarget(stat.Archery),
		Magnitude: magnitude,
		Lifetime:  effect.Permanent,
	}
}

func TestApply_TimedEffect_IsActive(t *testing.T) {
	d := newData(t, nil)
	require.NoError(t, d.Apply(agilityBuff("haste", 3, effect.Timed)))
	assert.True(t, d.HasEffect("haste"))
	assert.Equal(t, 13, d.AttributeValue(stat.Agility))
}

func TestApply_Instant_FoldsIntoBaseAndIsNotStored(t *testing.T) {
	d := newData(t, func(b *stat.Block) { b.SetAttribute(stat.Agility, 10) })
	require.NoError(t, d.Apply(agilityBuff("potion", 10, effect.Instant)))
	assert.False(t, d.HasEffect("potion"))
	assert.Equal(t, 20, d.AttributeValue(stat.Agility))
	assert.Equal(t, 20, d.Stats().Attribute(stat.Agility))
	assert.Empty(t, d.AllEffects())
}

func TestApply_Instant_NeverReapplies(t *testing.T) {
	d := newData(t, zeroHealth)
	e := regen(10 * time.Second)
	e.Lifetime = effect.Instant
	require.NoError(t, d.Apply(e))
	assert.Equal(t, 1, d.AttributeValue(stat.Health))
	for i := 0; i < 10; i++ {
		d.Advance(time.Second)
	}
	assert.Equal(t, 1, d.AttributeValue(stat.Health))
}

func TestApply_Instant_ClampsQueryButKeepsBase(t *testing.T) {
	d := newData(t, func(b *stat.Block) { b.SetAttribute(stat.Agility, 10) })
	require.NoError(t, d.Apply(agilityBuff("curse", -20, effect.Instant)))
	assert.Equal(t, 0, d.AttributeValue(stat.Agility))
	assert.Equal(t, -10, d.Stats().Attribute(stat.Agility))
}

func TestApply_TimedZeroDuration_Rejected(t *testing.T) {
	d := newData(t, nil)
	e := agilityBuff("haste", 3, effect.Timed)
	e.Duration = 0
	err := d.Apply(e)
	assert.ErrorIs(t, err, effect.ErrInvalidDuration)
	assert.False(t, d.HasEffect("haste"))
	assert.Equal(t, 10, d.AttributeValue(stat.Agility))
}

func TestApply_TimedNegativeDuration_Rejected(t *testing.T) {
	d := newData(t, nil)
	e := regen(-time.Second)
	require.ErrorIs(t, d.Apply(e), effect.ErrInvalidDuration)
	assert.Equal(t, 10, d.Stats().Attribute(stat.Health), "rejected periodic effect must not apply")
}

func TestApply_SentinelTarget_Rejected(t *testing.T) {
	d := newData(t, nil)
	e := agilityBuff("bad", 3, effect.Permanent)
	e.Target = effect.AttributeTarget(stat.AttributeMax)
	assert.ErrorIs(t, d.Apply(e), effect.ErrInvalidTarget)
	assert.False(t, d.HasEffect("bad"))
}

func TestApply_CallerMutationDoesNotLeakIntoLedger(t *testing.T) {
	d := newData(t, nil)
	e := agilityBuff("haste", 3, effect.Permanent)
	require.NoError(t, d.Apply(e))
	e.Magnitude = 100
	assert.Equal(t, 13, d.AttributeValue(stat.Agility))
}

func TestRemove_RoundTripRestoresValue(t *testing.T) {
	d := newData(t, nil)
	before := d.AttributeValue(stat.Agility)
	require.NoError(t, d.Apply(agilityBuff("haste", 7, effect.Timed)))
	d.Remove("haste")
	assert.False(t, d.HasEffect("haste"))
	assert.Equal(t, before, d.AttributeValue(stat.Agility))
}

func TestRemove_Absent_NoOp(t *testing.T) {
	d := newData(t, nil)
	assert.NotPanics(t, func() { d.Remove("nonexistent") })
	assert.False(t, d.HasEffect("nonexistent"))
}

func TestRemoveAll_ClearsEverything(t *testing.T) {
	d := newData(t, nil)
	require.NoError(t, d.Apply(agilityBuff("a", 1, effect.Timed)))
	require.NoError(t, d.Apply(agilityBuff("b", 1, effect.Permanent)))
	require.NoError(t, d.Apply(archeryBuff("c", 1)))
	d.RemoveAll()
	for _, id := range []string{"a", "b", "c"} {
		assert.False(t, d.HasEffect(id), id)
	}
	assert.Equal(t, 10, d.AttributeValue(stat.Agility))
	assert.Equal(t, 1, d.SkillValue(stat.Archery))
}

func TestRemoveAllFor_OnlyThatTarget(t *testing.T) {
	d := newData(t, nil)
	require.NoError(t, d.Apply(agilityBuff("agi", 4, effect.Permanent)))
	str := agilityBuff("str", 2, effect.Permanent)
	str.Target = effect.AttributeTarget(stat.Strength)
	require.NoError(t, d.Apply(str))
	require.NoError(t, d.Apply(archeryBuff("archery", 5)))

	d.RemoveAllFor(effect.AttributeTarget(stat.Agility))

	assert.False(t, d.HasEffect("agi"))
	assert.True(t, d.HasEffect("str"))
	assert.True(t, d.HasEffect("archery"))
	assert.Equal(t, 10, d.AttributeValue(stat.Agility))
	assert.Equal(t, 12, d.AttributeValue(stat.Strength))
	assert.Equal(t, 6, d.SkillValue(stat.Archery))
}

func TestRemoveAllFor_Skill(t *testing.T) {
	d := newData(t, nil)
	require.NoError(t, d.Apply(archeryBuff("a", 5)))
	require.NoError(t, d.Apply(agilityBuff("agi", 4, effect.Permanent)))
	d.RemoveAllFor(effect.SkillTarget(stat.Archery))
	assert.False(t, d.HasEffect("a"))
	assert.True(t, d.HasEffect("agi"))
}

func TestAdvance_ZeroDelta_Tolerated(t *testing.T) {
	d := newData(t, nil)
	require.NoError(t, d.Apply(agilityBuff("haste", 3, effect.Timed)))
	d.Advance(0)
	d.Advance(-time.Second)
	assert.Equal(t, time.Duration(0), d.Clock())
	assert.True(t, d.HasEffect("haste"))
}

func TestAdvance_RemovesExpiredEffect(t *testing.T) {
	d := newData(t, nil)
	require.NoError(t, d.Apply(agilityBuff("haste", 3, effect.Timed)))
	d.Advance(5 * time.Second)
	assert.True(t, d.HasEffect("haste"))
	d.Advance(5010 * time.Millisecond)
	assert.False(t, d.HasEffect("haste"))
	assert.Equal(t, 10, d.AttributeValue(stat.Agility))
}

func TestAdvance_ExpiryBoundaryIsInclusive(t *testing.T) {
	d := newData(t, nil)
	require.NoError(t, d.Apply(agilityBuff("haste", 3, effect.Timed)))
	d.Advance(10*time.Second - time.Millisecond)
	assert.True(t, d.HasEffect("haste"), "strictly less than duration keeps the effect")
	d.Advance(time.Millisecond)
	assert.False(t, d.HasEffect("haste"), "exactly the duration retires the effect")
}

func TestAdvance_SkillEffectsUseSameBoundary(t *testing.T) {
	d := newData(t, nil)
	e := archeryBuff("aim", 5)
	e.Lifetime = effect.Timed
	e.Duration = 3 * time.Second
	require.NoError(t, d.Apply(e))
	d.Advance(3 * time.Second)
	assert.False(t, d.HasEffect("aim"))
	assert.Equal(t, 1, d.SkillValue(stat.Archery))
}

func TestAdvance_PermanentSurvives(t *testing.T) {
	d := newData(t, nil)
	e := agilityBuff("blessing", 2, effect.Permanent)
	e.Duration = 0
	require.NoError(t, d.Apply(e))
	d.Advance(10010 * time.Millisecond)
	for i := 0; i < 100; i++ {
		d.Advance(time.Hour)
	}
	assert.True(t, d.HasEffect("blessing"))
	assert.Equal(t, 12, d.AttributeValue(stat.Agility))
}

func TestAdvance_PeriodicAppliesOverTime(t *testing.T) {
	d := newData(t, zeroHealth)
	require.NoError(t, d.Apply(regen(10*time.Second)))

	for expected := 1; expected < 10; expected++ {
		assert.Equal(t, expected, d.AttributeValue(stat.Health))
		d.Advance(time.Second)
	}
	assert.Equal(t, 10, d.AttributeValue(stat.Health))

	for i := 0; i < 10; i++ {
		d.Advance(time.Second)
	}
	assert.False(t, d.HasEffect("regen"))
	assert.Equal(t, 10, d.AttributeValue(stat.Health))
}

func TestAdvance_PeriodicCorrectWhenDeltaOverOneSecond(t *testing.T) {
	d := newData(t, zeroHealth)
	require.NoError(t, d.Apply(regen(10*time.Second)))

	for expected := 1; expected < 5; expected++ {
		assert.Equal(t, expected*2-1, d.AttributeValue(stat.Health))
		d.Advance(2 * time.Second)
	}
	for i := 0; i < 10; i++ {
		d.Advance(time.Second)
	}
	assert.Equal(t, 10, d.AttributeValue(stat.Health))
}

func TestAdvance_SingleTwoSecondStep_AppliesTwoIncrements(t *testing.T) {
	d := newData(t, zeroHealth)
	require.NoError(t, d.Apply(regen(10*time.Second)))
	before := d.AttributeValue(stat.Health)
	d.Advance(2 * time.Second)
	assert.Equal(t, before+2, d.AttributeValue(stat.Health))
}

func TestAdvance_FractionalStepCarriesRemainder(t *testing.T) {
	d := newData(t, zeroHealth)
	require.NoError(t, d.Apply(regen(time.Minute)))
	d.Advance(2500 * time.Millisecond)
	assert.Equal(t, 3, d.AttributeValue(stat.Health), "1 on apply + 2 whole seconds")
	d.Advance(500 * time.Millisecond)
	assert.Equal(t, 4, d.AttributeValue(stat.Health), "carried half second completes the third")
}

func TestAdvance_SubSecondFrames_ApplyOncePerSecond(t *testing.T) {
	d := newData(t, zeroHealth)
	require.NoError(t, d.Apply(regen(time.Minute)))
	for i := 0; i < 60; i++ {
		d.Advance(50 * time.Millisecond)
	}
	// 3 seconds elapsed: 1 on apply + 3 periodic.
	assert.Equal(t, 4, d.AttributeValue(stat.Health))
}

func TestAdvance_PermanentPeriodicNeverStops(t *testing.T) {
	d := newData(t, zeroHealth)
	e := regen(0)
	e.Lifetime = effect.Permanent
	require.NoError(t, d.Apply(e))
	for i := 0; i < 30; i++ {
		d.Advance(time.Second)
	}
	assert.True(t, d.HasEffect("regen"))
	assert.Equal(t, 31, d.AttributeValue(stat.Health))
}

func TestAdvance_PeriodicDamage_QueryClampedAtZero(t *testing.T) {
	d := newData(t, func(b *stat.Block) { b.SetAttribute(stat.Health, 3) })
	poison := regen(10 * time.Second)
	poison.ID = "poison"
	poison.Magnitude = -2
	require.NoError(t, d.Apply(poison))
	for i := 0; i < 10; i++ {
		d.Advance(time.Second)
	}
	assert.Equal(t, 0, d.AttributeValue(stat.Health))
	assert.Less(t, d.Stats().Attribute(stat.Health), 0)
}

func TestQuery_PeriodicNotDoubleCounted(t *testing.T) {
	d := newData(t, zeroHealth)
	require.NoError(t, d.Apply(regen(10*time.Second)))
	assert.Equal(t, d.Stats().Attribute(stat.Health), d.AttributeValue(stat.Health))
}

func TestQuery_Sentinels_ReturnZero(t *testing.T) {
	d := newData(t, nil)
	assert.Equal(t, 0, d.AttributeValue(stat.AttributeMax))
	assert.Equal(t, 0, d.AttributeValue(stat.AttributeDefault))
	assert.Equal(t, 0, d.SkillValue(stat.SkillMax))
	assert.Equal(t, 0, d.SkillValue(stat.SkillDefault))
}

func TestSkillValue_IncludesStatusEffect(t *testing.T) {
	d := newData(t, func(b *stat.Block) { b.SetSkill(stat.Archery, 10) })
	require.NoError(t, d.Apply(archeryBuff("aim", 10)))
	assert.Equal(t, 20, d.SkillValue(stat.Archery))
}

func TestSkillValue_DoesNotGoBelowZero(t *testing.T) {
	d := newData(t, func(b *stat.Block) { b.SetSkill(stat.Archery, 10) })
	require.NoError(t, d.Apply(archeryBuff("blind", -20)))
	assert.Equal(t, 0, d.SkillValue(stat.Archery))
}

func TestApply_PeriodicSkill_RejectedWithoutStateChange(t *testing.T) {
	d := newData(t, nil)
	base := d.SkillValue(stat.Archery)
	e := archeryBuff("focus", 5)
	e.Periodic = true

	assert.ErrorIs(t, d.Apply(e), effect.ErrPeriodicSkill)
	assert.False(t, d.HasEffect("focus"))
	d.Advance(3 * time.Second)
	assert.Equal(t, base, d.SkillValue(stat.Archery))
}

func TestSkillValue_PermanentEffectStaysConstant(t *testing.T) {
	d := newData(t, nil)
	base := d.SkillValue(stat.Archery)
	require.NoError(t, d.Apply(archeryBuff("focus", 5)))
	for i := 0; i < 5; i++ {
		d.Advance(time.Second)
		assert.Equal(t, base+5, d.SkillValue(stat.Archery))
	}
}

func TestHooks_FireOnApplyAndRemove(t *testing.T) {
	d := newData(t, nil)
	var applied []string
	removed := map[string]character.RemovalReason{}
	d.SetHooks(character.Hooks{
		OnApplied: func(e effect.StatusEffect) { applied = append(applied, e.ID) },
		OnRemoved: func(e effect.StatusEffect, r character.RemovalReason) { removed[e.ID] = r },
	})

	require.NoError(t, d.Apply(agilityBuff("potion", 1, effect.Instant)))
	require.NoError(t, d.Apply(agilityBuff("timed", 1, effect.Timed)))
	require.NoError(t, d.Apply(agilityBuff("explicit", 1, effect.Permanent)))
	require.NoError(t, d.Apply(archeryBuff("cleared", 1)))

	d.Remove("explicit")
	d.Advance(10 * time.Second)
	d.RemoveAll()

	assert.Equal(t, []string{"potion", "timed", "explicit", "cleared"}, applied)
	assert.Equal(t, map[string]character.RemovalReason{
		"explicit": character.Removed,
		"timed":    character.Expired,
		"cleared":  character.Cleared,
	}, removed)
}

func TestHooks_NotFiredOnRejectedApply(t *testing.T) {
	d := newData(t, nil)
	fired := false
	d.SetHooks(character.Hooks{OnApplied: func(effect.StatusEffect) { fired = true }})
	e := agilityBuff("bad", 1, effect.Timed)
	e.Duration = 0
	require.Error(t, d.Apply(e))
	assert.False(t, fired)
}

func TestPropertyQuery_NeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := stat.NewBlock()
		d := character.NewData(b, nil)
		attrs := stat.Attributes()
		n := rapid.IntRange(0, 20).Draw(t, "effects")
		for i := 0; i < n; i++ {
			a := rapid.SampledFrom(attrs).Draw(t, "attr")
			e := effect.StatusEffect{
				ID:        rapid.StringMatching(`[a-z]{1,4}`).Draw(t, "id"),
				Target:    effect.AttributeTarget(a),
				Magnitude: rapid.IntRange(-1000, 1000).Draw(t, "mag"),
				Lifetime:  rapid.SampledFrom([]effect.Lifetime{effect.Instant, effect.Timed, effect.Permanent}).Draw(t, "lifetime"),
				Periodic:  rapid.Bool().Draw(t, "periodic"),
				Duration:  time.Duration(rapid.IntRange(1, 20).Draw(t, "dur")) * time.Second,
			}
			require.NoError(t, d.Apply(e))
			d.Advance(time.Duration(rapid.IntRange(0, 3000).Draw(t, "dt")) * time.Millisecond)
		}
		for _, a := range attrs {
			assert.GreaterOrEqual(t, d.AttributeValue(a), 0)
		}
		for _, s := range stat.Skills() {
			assert.GreaterOrEqual(t, d.SkillValue(s), 0)
		}
	})
}

func TestPropertyApplyRemove_RestoresNonPeriodicValue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := character.NewData(nil, nil)
		a := rapid.SampledFrom(stat.Attributes()).Draw(t, "attr")
		before := d.AttributeValue(a)
		e := effect.StatusEffect{
			ID:        "x",
			Target:    effect.AttributeTarget(a),
			Magnitude: rapid.IntRange(-100, 100).Draw(t, "mag"),
			Lifetime:  rapid.SampledFrom([]effect.Lifetime{effect.Timed, effect.Permanent}).Draw(t, "lifetime"),
			Duration:  time.Second,
		}
		require.NoError(t, d.Apply(e))
		d.Remove("x")
		assert.Equal(t, before, d.AttributeValue(a))
	})
}

func TestPropertyTimedEffect_ExpiresExactlyAtDuration(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := character.NewData(nil, nil)
		durMs := rapid.IntRange(1, 20000).Draw(t, "durMs")
		e := agilityBuff("t", 1, effect.Timed)
		e.Duration = time.Duration(durMs) * time.Millisecond
		require.NoError(t, d.Apply(e))
		var elapsed time.Duration
		for elapsed < e.Duration {
			assert.True(t, d.HasEffect("t"))
			step := time.Duration(rapid.IntRange(1, 3000).Draw(t, "stepMs")) * time.Millisecond
			d.Advance(step)
			elapsed += step
		}
		assert.False(t, d.HasEffect("t"))
	})
}
