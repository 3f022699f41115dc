package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/ptr"
)

const (
	squat = 1
	bench = 2
	dead  = 3
)

var monday = time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)

// spaced returns planned workouts with order indices 0..len(offsets)-1 dated monday plus the given day offsets.
func spaced(offsets ...int) []Workout {
	workouts := make([]Workout, len(offsets))
	for i, off := range offsets {
		workouts[i] = Workout{
			ID:         i + 1,
			OrderIndex: i,
			Date:       monday.AddDate(0, 0, off),
			Status:     StatusPlanned,
		}
	}
	return workouts
}

type move struct {
	Order  int
	Offset int
}

// moves maps workout ids to their new order index and day offset from monday.
func moves(changes []WorkoutChange) map[int]move {
	out := make(map[int]move, len(changes))
	for _, c := range changes {
		out[c.WorkoutID] = move{Order: c.NewOrderIndex, Offset: int(c.NewDate.Sub(monday).Hours() / 24)}
	}
	return out
}

func TestPlanShift(t *testing.T) {
	tests := []struct {
		name     string
		selected []Workout
		req      ShiftRequest
		want     map[int]move
	}{
		{
			name:     "days",
			selected: spaced(0, 2, 4),
			req:      ShiftRequest{DayDelta: 1},
			want:     map[int]move{1: {0, 1}, 2: {1, 3}, 3: {2, 5}},
		},
		{
			name:     "index",
			selected: spaced(0, 2, 4),
			req:      ShiftRequest{IndexDelta: 2},
			want:     map[int]move{1: {2, 0}, 2: {3, 2}, 3: {4, 4}},
		},
		{
			name:     "noop",
			selected: spaced(0, 2, 4),
			req:      ShiftRequest{},
			want:     map[int]move{},
		},
		{
			name:     "rest days compress",
			selected: spaced(0, 2, 4, 6),
			req:      ShiftRequest{Restructure: &Restructure{RestDays: ptr.Ref(0)}},
			want:     map[int]move{2: {1, 1}, 3: {2, 2}, 4: {3, 3}},
		},
		{
			name:     "rest days after first move",
			selected: spaced(0, 2, 4),
			req:      ShiftRequest{DayDelta: 3, Restructure: &Restructure{RestDays: ptr.Ref(2)}},
			want:     map[int]move{1: {0, 3}, 2: {1, 6}, 3: {2, 9}},
		},
		{
			name:     "every keeps original spacing",
			selected: spaced(0, 2, 4, 6, 8),
			req:      ShiftRequest{Restructure: &Restructure{ExtraDays: 1, Every: 2}},
			want:     map[int]move{3: {2, 5}, 4: {3, 7}, 5: {4, 10}},
		},
		{
			name:     "after positions",
			selected: spaced(0, 2, 4, 6, 8),
			req:      ShiftRequest{Restructure: &Restructure{RestDays: ptr.Ref(1), ExtraDays: 3, After: []int{1}}},
			want:     map[int]move{2: {1, 5}, 3: {2, 7}, 4: {3, 9}, 5: {4, 11}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := moves(planShift(tt.selected, tt.req))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("planShift() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckShift(t *testing.T) {
	workouts := spaced(0, 1, 2, 3)
	tests := []struct {
		name    string
		changes []WorkoutChange
		wantErr error
	}{
		{
			name:    "whole tail forward",
			changes: planShift(workouts[1:], ShiftRequest{IndexDelta: 1}),
			wantErr: nil,
		},
		{
			name:    "onto unselected",
			changes: planShift(workouts[:1], ShiftRequest{IndexDelta: 1}),
			wantErr: ErrUniquenessConflict,
		},
		{
			name:    "negative",
			changes: planShift(workouts[:2], ShiftRequest{IndexDelta: -1}),
			wantErr: ErrInvalidShift,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkShift(workouts, tt.changes)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("checkShift() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("checkShift() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSelection(t *testing.T) {
	workouts := spaced(-2, -1, 0, 1, 2)
	workouts[3].Status = StatusCompleted
	workouts[4].Status = StatusSkipped

	ids := func(ws []Workout) []int {
		var out []int
		for _, w := range ws {
			out = append(out, w.ID)
		}
		return out
	}
	tests := []struct {
		name string
		sel  Selection
		want []int
	}{
		{name: "order range skips completed", sel: Selection{OrderFrom: ptr.Ref(1)}, want: []int{2, 3, 5}},
		{name: "only future includes today", sel: Selection{OnlyFuture: true}, want: []int{3, 5}},
		{name: "indices", sel: Selection{OrderIndices: []int{4, 0}}, want: []int{1, 5}},
		{name: "dates", sel: Selection{DateFrom: ptr.Ref(monday.Add(-time.Hour)), DateTo: ptr.Ref(monday)}, want: []int{2, 3}},
		{
			name: "statuses narrow a scope",
			sel:  Selection{OrderFrom: ptr.Ref(0), Statuses: []Status{StatusSkipped}},
			want: []int{5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.sel.validate("test"); err != nil {
				t.Fatalf("validate() unexpected error: %v", err)
			}
			got := ids(tt.sel.selectWorkouts(workouts, monday.Add(20*time.Hour)))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("selectWorkouts() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelection_Unscoped(t *testing.T) {
	for _, sel := range []Selection{{}, {Statuses: []Status{StatusPlanned}}} {
		err := sel.validate("bulk edit")
		var scopeErr *FilterScopeError
		if !errors.As(err, &scopeErr) || !errors.Is(err, ErrFilterScope) {
			t.Errorf("validate(%+v) = %v, want FilterScopeError", sel, err)
		}
	}
}

func values(intensity float64, volume load.Volume) SetValues {
	return SetValues{Intensity: ptr.Ref(intensity), Effort: nil, Volume: ptr.Ref(volume), WeightKg: nil}
}

func instance(id, exerciseID, position int, sets ...SetValues) ExerciseInstance {
	inst := ExerciseInstance{ID: id, ExerciseID: exerciseID, Position: position}
	for i, v := range sets {
		inst.Sets = append(inst.Sets, Set{ID: id*10 + i, InstanceID: id, Number: i, Values: v})
	}
	return inst
}

// editFixture has a squat and bench day followed by a squat only day.
func editFixture() []Workout {
	workouts := spaced(0, 2)
	workouts[0].Exercises = []ExerciseInstance{
		instance(1, squat, 0, values(80, load.Exact(5)), values(85, load.Exact(3))),
		instance(2, bench, 1, values(70, load.Exact(8))),
	}
	workouts[1].Exercises = []ExerciseInstance{
		instance(3, squat, 0, values(80, load.Exact(5))),
	}
	return workouts
}

type counts struct {
	MatchedWorkouts, MatchedInstances, MatchedSets, UpdatedSets int
	ReplacedInstances, AddedInstances, AddedSets                int
}

func countsOf(r BulkEditResult) counts {
	return counts{
		MatchedWorkouts:   r.MatchedWorkouts,
		MatchedInstances:  r.MatchedInstances,
		MatchedSets:       r.MatchedSets,
		UpdatedSets:       r.UpdatedSets,
		ReplacedInstances: r.ReplacedInstances,
		AddedInstances:    r.AddedInstances,
		AddedSets:         r.AddedSets,
	}
}

func TestPlanBulkEdit_Counts(t *testing.T) {
	tests := []struct {
		name string
		req  BulkEditRequest
		want counts
	}{
		{
			name: "increase filtered sets",
			req: BulkEditRequest{
				ExerciseIDs: []int{squat},
				SetFilters:  SetFilters{Intensity: &Range{Min: ptr.Ref(80.0), Max: ptr.Ref(82.0)}},
				SetActions:  SetActions{Intensity: &FieldAction{Increase: ptr.Ref(2.5)}},
			},
			want: counts{MatchedWorkouts: 2, MatchedInstances: 2, MatchedSets: 2, UpdatedSets: 2},
		},
		{
			name: "set to the current value changes nothing",
			req: BulkEditRequest{
				SetFilters: SetFilters{Intensity: &Range{Min: ptr.Ref(80.0), Max: ptr.Ref(80.0)}},
				SetActions: SetActions{Intensity: &FieldAction{SetTo: ptr.Ref(80.0)}},
			},
			want: counts{MatchedWorkouts: 2, MatchedInstances: 3, MatchedSets: 2, UpdatedSets: 0},
		},
		{
			name: "unresolved field never matches a range",
			req: BulkEditRequest{
				SetFilters: SetFilters{Weight: &Range{Min: nil, Max: nil}},
				SetActions: SetActions{Weight: &FieldAction{SetTo: ptr.Ref(60.0)}},
			},
			want: counts{MatchedWorkouts: 2, MatchedInstances: 3},
		},
		{
			name: "replace only instances with a matched set",
			req: BulkEditRequest{
				ExerciseIDs:       []int{squat},
				SetFilters:        SetFilters{Intensity: &Range{Min: ptr.Ref(85.0)}},
				ReplaceExerciseID: ptr.Ref(dead),
			},
			want: counts{MatchedWorkouts: 2, MatchedInstances: 2, MatchedSets: 1, ReplacedInstances: 1},
		},
		{
			name: "replace without filters",
			req:  BulkEditRequest{ExerciseIDs: []int{squat}, ReplaceExerciseID: ptr.Ref(dead)},
			want: counts{MatchedWorkouts: 2, MatchedInstances: 2, MatchedSets: 3, ReplacedInstances: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := countsOf(planBulkEdit(editFixture(), tt.req, nil))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("planBulkEdit() counts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanBulkEdit_AdditionSources(t *testing.T) {
	history := map[int][]SetValues{dead: {values(75, load.Exact(5)), values(75, load.Exact(5))}}
	req := BulkEditRequest{
		Additions: []Addition{
			{ExerciseID: dead},
			{ExerciseID: bench},
			{ExerciseID: 4, Sets: []SetValues{values(60, load.AtLeast(10))}},
		},
	}
	got := planBulkEdit(editFixture(), req, history)

	type added struct {
		ExerciseID, Position, Sets int
		Source                     string
	}
	var views [][]added
	for _, d := range got.Details {
		var row []added
		for _, a := range d.Added {
			row = append(row, added{ExerciseID: a.ExerciseID, Position: a.Position, Sets: len(a.Sets), Source: a.Source})
		}
		views = append(views, row)
	}
	want := [][]added{
		{
			{ExerciseID: dead, Position: 2, Sets: 2, Source: sourceHistory},
			{ExerciseID: bench, Position: 3, Sets: 1, Source: sourceScan},
			{ExerciseID: 4, Position: 4, Sets: 1, Source: sourceExplicit},
		},
		{
			{ExerciseID: dead, Position: 1, Sets: 2, Source: sourceScan},
			{ExerciseID: bench, Position: 2, Sets: 1, Source: sourceScan},
			{ExerciseID: 4, Position: 3, Sets: 1, Source: sourceExplicit},
		},
	}
	if diff := cmp.Diff(want, views); diff != "" {
		t.Errorf("additions mismatch (-want +got):\n%s", diff)
	}

	if src := planBulkEdit(editFixture()[1:], BulkEditRequest{Additions: []Addition{{ExerciseID: dead}}}, nil).
		Details[0].Added[0].Source; src != sourcePlaceholder {
		t.Errorf("addition without history source = %q, want %q", src, sourcePlaceholder)
	}
}

func TestSetActions_Apply(t *testing.T) {
	tests := []struct {
		name    string
		actions SetActions
		in      SetValues
		want    SetValues
	}{
		{
			name:    "clamped weight",
			actions: SetActions{Weight: &FieldAction{Decrease: ptr.Ref(100.0)}, ClampNonNegative: true},
			in:      SetValues{WeightKg: ptr.Ref(60.0)},
			want:    SetValues{WeightKg: ptr.Ref(0.0)},
		},
		{
			name:    "open volume stays open",
			actions: SetActions{Volume: &FieldAction{Increase: ptr.Ref(2.0)}},
			in:      SetValues{Volume: ptr.Ref(load.AtLeast(12))},
			want:    SetValues{Volume: ptr.Ref(load.AtLeast(14))},
		},
		{
			name:    "delta skips unresolved",
			actions: SetActions{Effort: &FieldAction{Increase: ptr.Ref(1.0)}},
			in:      SetValues{Intensity: ptr.Ref(80.0)},
			want:    SetValues{Intensity: ptr.Ref(80.0)},
		},
		{
			name:    "set to wins over deltas",
			actions: SetActions{Effort: &FieldAction{SetTo: ptr.Ref(8.0), Increase: ptr.Ref(1.0)}},
			in:      SetValues{},
			want:    SetValues{Effort: ptr.Ref(8.0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.actions.apply(tt.in)); diff != "" {
				t.Errorf("apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
