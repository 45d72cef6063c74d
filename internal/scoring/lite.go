package scoring

// LiteWeights are the composite weights of the lite heat scheme.
type LiteWeights struct {
	Velocity float64 `yaml:"velocity"`
	Accel    float64 `yaml:"accel"`
	XPlat    float64 `yaml:"xplat"`
	Novelty  float64 `yaml:"novelty"`
	EtFit    float64 `yaml:"et_fit"`
	Tentpole float64 `yaml:"tentpole"`
	Decay    float64 `yaml:"decay"`
	Risk     float64 `yaml:"risk"`
}

// DefaultLiteWeights returns the production lite-scheme weighting.
func DefaultLiteWeights() LiteWeights {
	return LiteWeights{
		Velocity: 0.35,
		Accel:    0.20,
		XPlat:    0.20,
		Novelty:  0.10,
		EtFit:    0.10,
		Tentpole: 0.10,
		Decay:    0.10,
		Risk:     0.10,
	}
}

// LiteInputs are the per-entity component values feeding the lite scheme.
type LiteInputs struct {
	ZTrends  float64
	ZWiki    float64
	AccelAvg float64
	Novelty  float64
	EtFit    float64
	Tentpole float64
	Decay    float64
	Risk     float64

	// XPlatThreshold is the per-platform sigma bar for the binary
	// cross-platform confirmation (default 0.8).
	XPlatThreshold float64
}

// LiteComponents is the fully expanded lite composite, persisted alongside
// the heat value so reasons remain reconstructible.
type LiteComponents struct {
	VelocityZ float64 `json:"velocity_z"`
	Accel     float64 `json:"accel"`
	XPlat     float64 `json:"xplat"`
	Novelty   float64 `json:"novelty"`
	EtFit     float64 `json:"et_fit"`
	Tentpole  float64 `json:"tentpole"`
	Decay     float64 `json:"decay"`
	Risk      float64 `json:"risk"`
	Heat      float64 `json:"heat"`
}

// LiteHeat combines trend and wiki velocity, acceleration, cross-platform
// confirmation, novelty, editorial fit and tentpole boost into one composite,
// penalized by decay and risk.
func LiteHeat(in LiteInputs, w LiteWeights) LiteComponents {
	threshold := in.XPlatThreshold
	if threshold == 0 {
		threshold = 0.8
	}
	velocity := 0.5*in.ZTrends + 0.5*in.ZWiki
	xplat := CrossPlatformConfirm(in.ZTrends, in.ZWiki, threshold)

	heat := w.Velocity*velocity +
		w.Accel*in.AccelAvg +
		w.XPlat*xplat +
		w.Novelty*in.Novelty +
		w.EtFit*in.EtFit +
		w.Tentpole*in.Tentpole -
		w.Decay*in.Decay -
		w.Risk*in.Risk

	return LiteComponents{
		VelocityZ: velocity,
		Accel:     in.AccelAvg,
		XPlat:     xplat,
		Novelty:   in.Novelty,
		EtFit:     in.EtFit,
		Tentpole:  in.Tentpole,
		Decay:     in.Decay,
		Risk:      in.Risk,
		Heat:      heat,
	}
}
