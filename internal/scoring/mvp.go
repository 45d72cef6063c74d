package scoring

import "math"

// MVPComponents is the clamped component set of the MVP heat scheme.
type MVPComponents struct {
	VelocityZ      float64 `json:"velocity_z"`
	Spread         float64 `json:"spread"`
	Affect         float64 `json:"affect"`
	FreshnessDecay float64 `json:"freshness_decay"`
	Heat           float64 `json:"heat"`
}

// MVPHeat computes the MVP scheme: velocity clamped to [-4, 4], spread to
// [0, 1], |affect| to [0, 1]; raw = 0.5v + 0.3s + 0.2a, then scaled by
// freshness decay from the hours since the entity's last heat peak.
func MVPHeat(velocityZ, spread, affect, hoursSincePeak float64) MVPComponents {
	v := Clamp(velocityZ, -4.0, 4.0)
	s := Clamp(spread, 0.0, 1.0)
	a := Clamp(math.Abs(affect), 0.0, 1.0)

	raw := 0.5*v + 0.3*s + 0.2*a
	decay := FreshnessDecay(hoursSincePeak)

	return MVPComponents{
		VelocityZ:      v,
		Spread:         s,
		Affect:         a,
		FreshnessDecay: decay,
		Heat:           raw * decay,
	}
}
