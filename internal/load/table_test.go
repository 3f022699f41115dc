package load_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/ptr"
)

func defaultTable(t *testing.T, policy load.BucketPolicy) *load.Table {
	t.Helper()
	table, err := load.Default(policy)
	if err != nil {
		t.Fatalf("load default table: %v", err)
	}
	return table
}

func TestTable_Resolve(t *testing.T) {
	table := defaultTable(t, load.BucketNearest)

	tests := []struct {
		name  string
		known load.Load
		want  load.Load
	}{
		{
			name:  "intensity and effort give volume",
			known: load.Load{Intensity: ptr.Ref(80.0), Effort: ptr.Ref(8.0), Volume: nil},
			want:  load.Load{Intensity: ptr.Ref(80.0), Effort: ptr.Ref(8.0), Volume: ptr.Ref(load.Exact(5))},
		},
		{
			name:  "continuous intensity rounds to nearest bucket",
			known: load.Load{Intensity: ptr.Ref(83.0), Effort: ptr.Ref(10.0), Volume: nil},
			want:  load.Load{Intensity: ptr.Ref(83.0), Effort: ptr.Ref(10.0), Volume: ptr.Ref(load.Exact(5))},
		},
		{
			name:  "half step effort is floored",
			known: load.Load{Intensity: ptr.Ref(75.0), Effort: ptr.Ref(8.5), Volume: nil},
			want:  load.Load{Intensity: ptr.Ref(75.0), Effort: ptr.Ref(8.5), Volume: ptr.Ref(load.Exact(7))},
		},
		{
			name:  "volume and effort give heaviest intensity",
			known: load.Load{Intensity: nil, Effort: ptr.Ref(10.0), Volume: ptr.Ref(load.Exact(5))},
			want:  load.Load{Intensity: ptr.Ref(85.0), Effort: ptr.Ref(10.0), Volume: ptr.Ref(load.Exact(5))},
		},
		{
			name:  "volume and intensity give effort",
			known: load.Load{Intensity: ptr.Ref(70.0), Effort: nil, Volume: ptr.Ref(load.Exact(9))},
			want:  load.Load{Intensity: ptr.Ref(70.0), Effort: ptr.Ref(8.0), Volume: ptr.Ref(load.Exact(9))},
		},
		{
			name:  "open range volume matches open range cell",
			known: load.Load{Intensity: nil, Effort: ptr.Ref(10.0), Volume: ptr.Ref(load.AtLeast(12))},
			want:  load.Load{Intensity: ptr.Ref(65.0), Effort: ptr.Ref(10.0), Volume: ptr.Ref(load.AtLeast(12))},
		},
		{
			name:  "exact volume does not match open range cell",
			known: load.Load{Intensity: nil, Effort: ptr.Ref(10.0), Volume: ptr.Ref(load.Exact(12))},
			want:  load.Load{Intensity: nil, Effort: ptr.Ref(10.0), Volume: ptr.Ref(load.Exact(12))},
		},
		{
			name:  "missing cell leaves volume unresolved",
			known: load.Load{Intensity: ptr.Ref(100.0), Effort: ptr.Ref(6.0), Volume: nil},
			want:  load.Load{Intensity: ptr.Ref(100.0), Effort: ptr.Ref(6.0), Volume: nil},
		},
		{
			name:  "intensity outside table leaves volume unresolved",
			known: load.Load{Intensity: ptr.Ref(40.0), Effort: ptr.Ref(8.0), Volume: nil},
			want:  load.Load{Intensity: ptr.Ref(40.0), Effort: ptr.Ref(8.0), Volume: nil},
		},
		{
			name:  "single field stays unresolved",
			known: load.Load{Intensity: ptr.Ref(80.0), Effort: nil, Volume: nil},
			want:  load.Load{Intensity: ptr.Ref(80.0), Effort: nil, Volume: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Resolve(tt.known)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
			// Pure: resolving twice gives the same answer.
			if diff := cmp.Diff(got, table.Resolve(tt.known)); diff != "" {
				t.Errorf("Resolve() not deterministic (-first +second):\n%s", diff)
			}
		})
	}
}

func TestTable_BucketPolicy(t *testing.T) {
	nearest := defaultTable(t, load.BucketNearest)
	floor := defaultTable(t, load.BucketFloor)

	// 84% is nearest to the 85 bucket but floors to the 80 bucket.
	if v, ok := nearest.Volume(84, 10); !ok || !v.Equal(load.Exact(5)) {
		t.Errorf("nearest Volume(84, 10) = %v, %v, want 5, true", v, ok)
	}
	if v, ok := floor.Volume(84, 10); !ok || !v.Equal(load.Exact(7)) {
		t.Errorf("floor Volume(84, 10) = %v, %v, want 7, true", v, ok)
	}
}

// TestTable_RoundTrip checks every stored cell against both lookup directions.
func TestTable_RoundTrip(t *testing.T) {
	table := defaultTable(t, load.BucketNearest)
	for _, intensity := range []float64{60, 65, 70, 75, 80, 85, 90, 95, 100} {
		for effort := 1.0; effort <= 10; effort++ {
			volume, ok := table.Volume(intensity, effort)
			if !ok {
				continue
			}
			got := table.Resolve(load.Load{Intensity: &intensity, Effort: &effort, Volume: nil})
			if got.Volume == nil || !got.Volume.Equal(volume) {
				t.Errorf("Resolve(%v, %v).Volume = %v, want %v", intensity, effort, got.Volume, volume)
			}

			reverse := table.Resolve(load.Load{Intensity: &intensity, Effort: nil, Volume: &volume})
			if reverse.Effort == nil {
				t.Fatalf("Resolve(%v, volume %v) left effort unresolved", intensity, volume)
			}
			again, _ := table.Volume(intensity, *reverse.Effort)
			if !again.Equal(volume) {
				t.Errorf("effort %v for (%v, %v) re-resolves to %v", *reverse.Effort, intensity, volume, again)
			}
		}
	}
}

func halfStepTable(t *testing.T) *load.Table {
	t.Helper()
	table, err := load.New(map[float64]map[float64]load.Volume{
		80: {8: load.Exact(5), 8.5: load.Exact(6)},
		75: {8: load.Exact(6)},
	}, load.BucketNearest)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}
	return table
}

func TestTable_RoundTrip_HalfSteps(t *testing.T) {
	table := halfStepTable(t)

	effort, ok := table.Effort(80, load.Exact(6))
	if !ok || effort != 8.5 {
		t.Fatalf("Effort(80, 6) = %v, %v, want 8.5, true", effort, ok)
	}
	if intensity, found := table.Intensity(load.Exact(6), effort); !found || intensity != 80 {
		t.Errorf("Intensity(6, %v) = %v, %v, want 80, true", effort, intensity, found)
	}
	if intensity, found := table.Intensity(load.Exact(6), 8); !found || intensity != 75 {
		t.Errorf("Intensity(6, 8) = %v, %v, want 75, true", intensity, found)
	}
	if _, found := table.Intensity(load.Exact(6), 8.3); found {
		t.Error("Intensity(6, 8.3) matched a row without that effort key")
	}
	// The forward lookup still floors the effort.
	if v, found := table.Volume(80, 8.5); !found || !v.Equal(load.Exact(6)) {
		t.Errorf("Volume(80, 8.5) = %v, %v, want 6, true", v, found)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		rows map[float64]map[float64]load.Volume
	}{
		{name: "empty", rows: nil},
		{name: "intensity too low", rows: map[float64]map[float64]load.Volume{30: {10: load.Exact(20)}}},
		{name: "intensity too high", rows: map[float64]map[float64]load.Volume{105: {10: load.Exact(1)}}},
		{name: "effort too high", rows: map[float64]map[float64]load.Volume{80: {11: load.Exact(8)}}},
		{name: "effort not half step", rows: map[float64]map[float64]load.Volume{80: {8.3: load.Exact(5)}}},
		{name: "non-positive volume", rows: map[float64]map[float64]load.Volume{80: {8: load.Exact(0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load.New(tt.rows, load.BucketNearest); !errors.Is(err, load.ErrInvalidTable) {
				t.Errorf("New() error = %v, want ErrInvalidTable", err)
			}
		})
	}

	rows := map[float64]map[float64]load.Volume{80: {8.5: load.Exact(5), 8: load.AtLeast(12)}}
	if _, err := load.New(rows, load.BucketNearest); err != nil {
		t.Errorf("New() with half step and open range: unexpected error %v", err)
	}
	if _, err := load.New(rows, "sideways"); !errors.Is(err, load.ErrInvalidTable) {
		t.Errorf("New() with unknown policy: error = %v, want ErrInvalidTable", err)
	}
}

func TestParse(t *testing.T) {
	table, err := load.Parse([]byte("rows:\n  90: {10: 3, 9: \"12+\"}\n"), load.BucketNearest)
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if v, ok := table.Volume(90, 9); !ok || !v.Equal(load.AtLeast(12)) {
		t.Errorf("Volume(90, 9) = %v, %v, want 12+, true", v, ok)
	}

	if _, err = load.Parse([]byte("rows:\n  90: {10: three}\n"), load.BucketNearest); !errors.Is(err, load.ErrInvalidTable) {
		t.Errorf("Parse() error = %v, want ErrInvalidTable", err)
	}
}
