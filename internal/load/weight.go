package load

import (
	"fmt"
	"math"
)

// RoundingMode selects how a raw weight snaps to the rounding step.
type RoundingMode string

const (
	RoundNearest RoundingMode = "nearest"
	RoundFloor   RoundingMode = "floor"
	RoundCeil    RoundingMode = "ceil"
)

// ParseRoundingMode validates s as a RoundingMode.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch m := RoundingMode(s); m {
	case RoundNearest, RoundFloor, RoundCeil:
		return m, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Rounding configures weight resolution, typically the smallest plate increment available.
type Rounding struct {
	StepKg float64
	Mode   RoundingMode
}

// ResolveWeight returns intensityPercent of oneRepMax snapped to the rounding step. A non-positive step returns
// the raw weight.
func ResolveWeight(oneRepMaxKg, intensityPercent float64, r Rounding) float64 {
	raw := oneRepMaxKg * intensityPercent / 100 //nolint:mnd // percent.
	if r.StepKg <= 0 {
		return raw
	}
	steps := raw / r.StepKg
	switch r.Mode {
	case RoundFloor:
		steps = math.Floor(steps)
	case RoundCeil:
		steps = math.Ceil(steps)
	default:
		steps = math.Round(steps)
	}
	return steps * r.StepKg
}
