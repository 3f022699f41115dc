package load

import (
	"time"

	"github.com/myrjola/periodize/internal/ptr"
)

// epleyDivisor is the repetition divisor of the Epley formula 1RM = w * (1 + reps/30).
const epleyDivisor = 30

// TrainingMax is a recorded performance of an exercise. Records are never modified after they are created.
type TrainingMax struct {
	ID         int
	ExerciseID int
	WeightKg   float64
	Reps       int
	// Effort of the recorded performance. Nil means an all-out effort.
	Effort *float64
	// VerifiedOneRepMaxKg is an authoritative one-rep-max that overrides any estimate.
	VerifiedOneRepMaxKg *float64
	RecordedOn          time.Time
}

// OneRepMax returns the verified one-rep-max when present and otherwise estimates it from the recorded
// performance.
func (tm TrainingMax) OneRepMax(t *Table) float64 {
	if tm.VerifiedOneRepMaxKg != nil {
		return *tm.VerifiedOneRepMaxKg
	}
	return EstimateOneRepMax(t, tm.WeightKg, tm.Reps, ptr.Deref(tm.Effort, float64(MaxEffort)))
}

// EstimateOneRepMax converts weight lifted for reps at effort into a one-rep-max.
//
// The intensity is looked up in the table from reps and effort. Performances the table does not cover fall back
// to the Epley formula. Degenerate input is returned unchanged.
func EstimateOneRepMax(t *Table, weightKg float64, reps int, effort float64) float64 {
	if reps <= 0 || weightKg <= 0 {
		return weightKg
	}
	if t != nil {
		if intensity, ok := t.Intensity(Exact(reps), effort); ok {
			return weightKg / (intensity / 100) //nolint:mnd // percent.
		}
	}
	return weightKg * (1 + float64(reps)/epleyDivisor)
}
