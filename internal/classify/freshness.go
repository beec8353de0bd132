// Package classify turns a quarantined verdict into structured failure
// reasons that the retry planner can dispatch on.
package classify

import (
	"math"
	"time"
)

// DecayConfig controls time-decay of source-content trust. Content loses
// half its weight every HalfLifeDays; once the decayed weight of perfectly
// trusted content drops below StaleThreshold the content is considered
// stale for classification purposes.
type DecayConfig struct {
	HalfLifeDays   int     `mapstructure:"half_life_days" yaml:"half_life_days"`
	Floor          float64 `mapstructure:"floor" yaml:"floor"`
	StaleThreshold float64 `mapstructure:"stale_threshold" yaml:"stale_threshold"`
}

// DefaultDecayConfig returns the decay policy used when none is configured.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{
		HalfLifeDays:   365,
		Floor:          0.1,
		StaleThreshold: 0.5,
	}
}

// EffectiveConfidence computes the time-decayed confidence of a data point:
// max(floor, raw * 2^(-ageDays / halfLifeDays)).
func EffectiveConfidence(raw float64, asOf, now time.Time, cfg DecayConfig) float64 {
	if raw <= 0 {
		return 0
	}
	if asOf.IsZero() {
		// No timestamp, assume current.
		return raw
	}

	ageDays := now.Sub(asOf).Hours() / 24
	if ageDays <= 0 {
		return raw
	}

	halfLife := float64(cfg.HalfLifeDays)
	if halfLife <= 0 {
		halfLife = 365
	}

	decayed := raw * math.Pow(2, -ageDays/halfLife)
	if decayed < cfg.Floor {
		return cfg.Floor
	}
	return decayed
}

// Stale reports whether content captured at asOf has decayed below the
// staleness threshold. Unknown capture times are never stale.
func (cfg DecayConfig) Stale(asOf, now time.Time) bool {
	if asOf.IsZero() {
		return false
	}
	threshold := cfg.StaleThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	// Compare against the un-floored decay curve; the floor exists to keep
	// old-but-usable data alive, not to mask staleness.
	noFloor := cfg
	noFloor.Floor = 0
	return EffectiveConfidence(1.0, asOf, now, noFloor) < threshold
}
