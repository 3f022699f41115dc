package load_test

import (
	"math"
	"testing"

	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/ptr"
)

func TestEstimateOneRepMax(t *testing.T) {
	table := defaultTable(t, load.BucketNearest)

	tests := []struct {
		name   string
		weight float64
		reps   int
		effort float64
		want   float64
	}{
		{"single all-out rep is the max", 140, 1, 10, 140},
		{"table hit", 85, 5, 10, 100},            // 5 reps at effort 10 is 85%.
		{"table hit below max effort", 80, 5, 8, 100}, // 5 reps at effort 8 is 80%.
		{"epley fallback", 100, 4, 10, 100 * (1 + 4.0/30)},
		{"zero reps returns weight", 100, 0, 10, 100},
		{"negative reps returns weight", 100, -3, 10, 100},
		{"zero weight returns weight", 0, 5, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := load.EstimateOneRepMax(table, tt.weight, tt.reps, tt.effort)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EstimateOneRepMax(%v, %v, %v) = %v, want %v", tt.weight, tt.reps, tt.effort, got, tt.want)
			}
		})
	}

	t.Run("half step effort row", func(t *testing.T) {
		// 6 reps at effort 8.5 is 80% in this table, while effort 8 would give 75%.
		if got := load.EstimateOneRepMax(halfStepTable(t), 100, 6, 8.5); math.Abs(got-125) > 1e-9 {
			t.Errorf("EstimateOneRepMax(100, 6, 8.5) = %v, want 125", got)
		}
	})
}

func TestTrainingMax_OneRepMax(t *testing.T) {
	table := defaultTable(t, load.BucketNearest)

	t.Run("verified override wins", func(t *testing.T) {
		for _, tm := range []load.TrainingMax{
			{WeightKg: 85, Reps: 5, VerifiedOneRepMaxKg: ptr.Ref(123.0)},
			{WeightKg: 0, Reps: 0, VerifiedOneRepMaxKg: ptr.Ref(123.0)},
			{WeightKg: 500, Reps: 20, Effort: ptr.Ref(6.0), VerifiedOneRepMaxKg: ptr.Ref(123.0)},
		} {
			if got := tm.OneRepMax(table); got != 123 {
				t.Errorf("OneRepMax(%+v) = %v, want 123", tm, got)
			}
		}
	})

	t.Run("missing effort means all-out", func(t *testing.T) {
		tm := load.TrainingMax{WeightKg: 85, Reps: 5}
		if got := tm.OneRepMax(table); math.Abs(got-100) > 1e-9 {
			t.Errorf("OneRepMax() = %v, want 100", got)
		}
	})

	t.Run("recorded effort is used", func(t *testing.T) {
		tm := load.TrainingMax{WeightKg: 75, Reps: 5, Effort: ptr.Ref(6.0)}
		if got := tm.OneRepMax(table); math.Abs(got-100) > 1e-9 {
			t.Errorf("OneRepMax() = %v, want 100", got)
		}
	})
}

func TestResolveWeight(t *testing.T) {
	tests := []struct {
		name      string
		oneRepMax float64
		intensity float64
		rounding  load.Rounding
		want      float64
	}{
		{"nearest exact", 100, 80, load.Rounding{StepKg: 2.5, Mode: load.RoundNearest}, 80},
		{"nearest rounds up", 103, 80, load.Rounding{StepKg: 2.5, Mode: load.RoundNearest}, 82.5},
		{"floor", 103, 80, load.Rounding{StepKg: 2.5, Mode: load.RoundFloor}, 80},
		{"ceil", 101, 80, load.Rounding{StepKg: 2.5, Mode: load.RoundCeil}, 82.5},
		{"unknown mode rounds to nearest", 103, 80, load.Rounding{StepKg: 5, Mode: "sideways"}, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := load.ResolveWeight(tt.oneRepMax, tt.intensity, tt.rounding)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ResolveWeight() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("non-positive step returns raw weight for every mode", func(t *testing.T) {
		for _, mode := range []load.RoundingMode{load.RoundNearest, load.RoundFloor, load.RoundCeil} {
			for _, step := range []float64{0, -2.5} {
				got := load.ResolveWeight(103, 77, load.Rounding{StepKg: step, Mode: mode})
				if want := 103 * 77.0 / 100; got != want {
					t.Errorf("ResolveWeight(step %v, %s) = %v, want %v", step, mode, got, want)
				}
			}
		}
	})
}
