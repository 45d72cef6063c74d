package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestZScore_ShortSeriesScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, ZScore(nil))
	assert.Equal(t, 0.0, ZScore([]float64{1, 2, 3, 4}))
}

func TestZScore_SpikeAgainstFlatBaseline(t *testing.T) {
	// mean=1.8, population stddev=1.6, z=(5-1.8)/1.6=2.0
	z := ZScore([]float64{1, 1, 1, 1, 5})
	assert.InDelta(t, 2.0, z, 1e-6)
}

func TestZScore_ConstantSeriesScoresZero(t *testing.T) {
	z := ZScore([]float64{3, 3, 3, 3, 3})
	assert.InDelta(t, 0.0, z, 1e-6, "zero stddev must not blow up")
}

func TestShortZScore_RequiresOnlyThreePoints(t *testing.T) {
	assert.Equal(t, 0.0, ShortZScore([]float64{1, 2}))
	assert.NotEqual(t, 0.0, ShortZScore([]float64{1, 1, 4}))
}

func TestAcceleration(t *testing.T) {
	assert.Equal(t, 0.0, Acceleration([]float64{1, 2}))
	// (4-2)-(2-1) = 1
	assert.InDelta(t, 1.0, Acceleration([]float64{1, 2, 4}), 1e-9)
	// Deceleration goes negative.
	assert.InDelta(t, -1.0, Acceleration([]float64{1, 3, 4}), 1e-9)
}

func TestNovelty(t *testing.T) {
	assert.Equal(t, 0.0, Novelty([]float64{1, 1, 1, 1, 1, 1, 3}), "fewer than 8 points carries no baseline")

	// Trailing 7-point window [1,1,1,1,1,1,3], median 1, novelty (3-1)/1 = 2.
	vals := []float64{9, 1, 1, 1, 1, 1, 1, 3}
	assert.InDelta(t, 2.0, Novelty(vals), 1e-6)
}

func TestPlatformSpread(t *testing.T) {
	assert.Equal(t, 0.0, PlatformSpread(false, false, false))
	assert.InDelta(t, 1.0/3.0, PlatformSpread(true, false, false), 1e-9)
	assert.InDelta(t, 2.0/3.0, PlatformSpread(true, true, false), 1e-9)
	assert.Equal(t, 1.0, PlatformSpread(true, true, true))
}

func TestCrossPlatformConfirm_IsBinary(t *testing.T) {
	assert.Equal(t, 1.0, CrossPlatformConfirm(0.9, 0.8, 0.8), "both clearing the bar confirms")
	assert.Equal(t, 0.0, CrossPlatformConfirm(3.5, 0.2, 0.8), "one huge spike alone does not confirm")
	assert.Equal(t, 0.0, CrossPlatformConfirm(0.5, 0.5, 0.8))
}

func TestToneToAffect(t *testing.T) {
	tone := -2.5
	assert.Equal(t, 0.0, ToneToAffect(nil, 10, 3))
	assert.Equal(t, 0.0, ToneToAffect(&tone, 2, 3), "below volume floor is suppressed")
	assert.InDelta(t, 0.5, ToneToAffect(&tone, 10, 3), 1e-9)

	strong := 12.0
	assert.Equal(t, 1.0, ToneToAffect(&strong, 10, 3), "affect is capped at 1")
}

func TestTentpoleBoost(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	calendar := []Tentpole{
		{Title: "Oscars", Start: now.Add(-24 * time.Hour), End: now.Add(24 * time.Hour), Boost: 0.8},
		{Title: "SXSW", Start: now.Add(-24 * time.Hour), End: now.Add(24 * time.Hour), Boost: 0.5},
		{Title: "Comic-Con", Start: now.Add(30 * 24 * time.Hour), End: now.Add(33 * 24 * time.Hour), Boost: 0.9},
	}

	assert.Equal(t, 0.0, TentpoleBoost(now, nil, "Anyone"))
	assert.Equal(t, 0.5, TentpoleBoost(now, calendar, "SXSW keynote speaker"), "name match wins")
	assert.Equal(t, 0.8, TentpoleBoost(now, calendar, "Random Celebrity"), "falls back to max active boost")
	assert.Equal(t, 0.0, TentpoleBoost(now.Add(-10*24*time.Hour), calendar, "Oscars host"), "inactive windows do not boost")
}

func TestFreshnessDecay(t *testing.T) {
	assert.InDelta(t, 1.0, FreshnessDecay(0), 1e-9)
	assert.InDelta(t, 0.367879, FreshnessDecay(24), 1e-5)
	assert.InDelta(t, 1.0, FreshnessDecay(-5), 1e-9, "future peaks clamp to no decay")
	assert.Less(t, FreshnessDecay(NoPeakHours), 1e-15)
}

func TestHoursSince(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, NoPeakHours, HoursSince(nil, now))

	peak := now.Add(-36 * time.Hour)
	assert.InDelta(t, 36.0, HoursSince(&peak, now), 1e-9)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(5, -1, 1))
	assert.Equal(t, -1.0, Clamp(-5, -1, 1))
	assert.Equal(t, 0.3, Clamp(0.3, -1, 1))
}
