// Package scoring turns windows of raw signal series into normalized heat
// components and composite heat values. Everything in this package is pure
// computation over data already fetched; the Engine is the only part that
// touches the store.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"
)

const epsilon = 1e-9

// ZScore returns how far the last observation sits from the series mean in
// population standard deviations. Series shorter than 5 points carry no
// baseline and score 0.
func ZScore(values []float64) float64 {
	return zscore(values, 5)
}

// ShortZScore is the looser variant used for sparse platform sub-series,
// requiring only 3 points.
func ShortZScore(values []float64) float64 {
	return zscore(values, 3)
}

func zscore(values []float64, minPoints int) float64 {
	if len(values) < minPoints {
		return 0.0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(values)))

	return (values[len(values)-1] - mean) / (stddev + epsilon)
}

// Acceleration is the second difference over the last three points.
func Acceleration(values []float64) float64 {
	n := len(values)
	if n < 3 {
		return 0.0
	}
	return (values[n-1] - values[n-2]) - (values[n-2] - values[n-3])
}

// Novelty measures the last observation against a trailing 7-point rolling
// median. Series shorter than 8 points score 0.
func Novelty(values []float64) float64 {
	if len(values) < 8 {
		return 0.0
	}
	window := values[len(values)-7:]
	med := median(window)
	return (values[len(values)-1] - med) / (math.Abs(med) + epsilon)
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// PlatformSpread is the fraction of platform categories showing recent
// activity, out of {reddit, trends, tiktok}.
func PlatformSpread(reddit, trends, tiktok bool) float64 {
	count := 0
	for _, active := range []bool{reddit, trends, tiktok} {
		if active {
			count++
		}
	}
	return float64(count) / 3.0
}

// CrossPlatformConfirm is binary: 1.0 when at least two of the velocity
// z-scores individually clear the threshold, else 0.0.
func CrossPlatformConfirm(zTrends, zWiki, threshold float64) float64 {
	hits := 0
	if zTrends >= threshold {
		hits++
	}
	if zWiki >= threshold {
		hits++
	}
	if hits >= 2 {
		return 1.0
	}
	return 0.0
}

// ToneToAffect maps an average news tone to [0, 1] by |tone|/5. Below the
// volume floor the affect is suppressed entirely so a single strongly-toned
// article cannot move the score.
func ToneToAffect(avgTone *float64, volume, volumeFloor float64) float64 {
	if avgTone == nil {
		return 0.0
	}
	if volume < volumeFloor {
		return 0.0
	}
	return math.Min(1.0, math.Abs(*avgTone)/5.0)
}

// Tentpole is one calendar entry: a named event window with a boost value.
type Tentpole struct {
	Title string    `yaml:"title" json:"title"`
	Start time.Time `yaml:"start_date" json:"start_date"`
	End   time.Time `yaml:"end_date" json:"end_date"`
	Boost float64   `yaml:"boost" json:"boost"`
}

// TentpoleBoost returns the boost of the active calendar entry whose title
// appears in the entity name (case-insensitive), falling back to the maximum
// boost among all currently active entries, or 0 when none are active.
func TentpoleBoost(at time.Time, calendar []Tentpole, entityName string) float64 {
	var active []Tentpole
	for _, tp := range calendar {
		if !at.Before(tp.Start) && !at.After(tp.End) {
			active = append(active, tp)
		}
	}
	if len(active) == 0 {
		return 0.0
	}
	lowerName := strings.ToLower(entityName)
	for _, tp := range active {
		if strings.Contains(lowerName, strings.ToLower(tp.Title)) {
			return tp.Boost
		}
	}
	max := active[0].Boost
	for _, tp := range active[1:] {
		if tp.Boost > max {
			max = tp.Boost
		}
	}
	return max
}

// FreshnessDecay is exp(-hours/24), a half-life of roughly 16.6 hours.
func FreshnessDecay(hoursSincePeak float64) float64 {
	return math.Exp(-math.Max(0, hoursSincePeak) / 24.0)
}

// NoPeakHours stands in when an entity has no recorded heat peak; decay at
// this age is effectively zero.
const NoPeakHours = 999.0

// HoursSince returns the age of ts in hours relative to now, or NoPeakHours
// when ts is nil.
func HoursSince(ts *time.Time, now time.Time) float64 {
	if ts == nil {
		return NoPeakHours
	}
	return now.Sub(*ts).Hours()
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
