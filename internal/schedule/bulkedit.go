package schedule

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/logging"
	"github.com/myrjola/periodize/internal/ptr"
	"github.com/myrjola/periodize/internal/retry"
)

// Range is an inclusive numeric range. A nil bound is open.
type Range struct {
	Min *float64
	Max *float64
}

func (r *Range) contains(v *float64) bool {
	if r == nil {
		return true
	}
	if v == nil {
		return false
	}
	return (r.Min == nil || *v >= *r.Min) && (r.Max == nil || *v <= *r.Max)
}

// SetFilters narrows the sets of a matched exercise instance. All given ranges must hold. A set whose field is
// unresolved never matches a range on that field.
type SetFilters struct {
	Intensity *Range
	Effort    *Range
	Volume    *Range
	Weight    *Range
}

func (f SetFilters) active() bool {
	return f.Intensity != nil || f.Effort != nil || f.Volume != nil || f.Weight != nil
}

func (f SetFilters) matches(v SetValues) bool {
	var volume *float64
	if v.Volume != nil {
		volume = ptr.Ref(float64(v.Volume.Reps()))
	}
	return f.Intensity.contains(v.Intensity) && f.Effort.contains(v.Effort) &&
		f.Volume.contains(volume) && f.Weight.contains(v.WeightKg)
}

// FieldAction edits one set field. SetTo wins over the deltas. Deltas are skipped for unresolved fields.
type FieldAction struct {
	SetTo    *float64
	Increase *float64
	Decrease *float64
}

func (a *FieldAction) apply(v *float64, clamp bool) *float64 {
	if a == nil {
		return v
	}
	var out float64
	switch {
	case a.SetTo != nil:
		out = *a.SetTo
	case v == nil:
		return nil
	case a.Increase == nil && a.Decrease == nil:
		return v
	default:
		out = *v + ptr.Deref(a.Increase, 0) - ptr.Deref(a.Decrease, 0)
	}
	if clamp {
		out = max(out, 0)
	}
	return &out
}

// SetActions edits every matched set.
type SetActions struct {
	Intensity *FieldAction
	Effort    *FieldAction
	Volume    *FieldAction
	Weight    *FieldAction
	// ClampNonNegative keeps edited volume and weight at or above zero.
	ClampNonNegative bool
}

func (a SetActions) apply(v SetValues) SetValues {
	out := v.clone()
	out.Intensity = a.Intensity.apply(out.Intensity, false)
	out.Effort = a.Effort.apply(out.Effort, false)
	out.WeightKg = a.Weight.apply(out.WeightKg, a.ClampNonNegative)
	if a.Volume != nil {
		var reps *float64
		if out.Volume != nil {
			reps = ptr.Ref(float64(out.Volume.Reps()))
		}
		if edited := a.Volume.apply(reps, a.ClampNonNegative); edited != nil {
			n := int(math.Round(*edited))
			if out.Volume != nil {
				out.Volume = ptr.Ref(out.Volume.WithReps(n))
			} else {
				out.Volume = ptr.Ref(load.Exact(n))
			}
		}
	}
	return out
}

// Addition adds an exercise to every matched workout. Without explicit sets the set shape is copied from the
// latest instance of the exercise seen earlier in the same scan, then from history, then a single empty set.
type Addition struct {
	ExerciseID int
	Sets       []SetValues
}

// BulkEditRequest selects workouts, exercise instances and sets of an application and edits them.
type BulkEditRequest struct {
	ApplicationID uuid.UUID
	Selection     Selection
	// ExerciseIDs restricts the matched instances. Empty matches every instance.
	ExerciseIDs []int
	SetFilters  SetFilters
	SetActions  SetActions
	// ReplaceExerciseID swaps the exercise of matched instances and keeps their sets.
	ReplaceExerciseID *int
	Additions         []Addition
	Mode              Mode
}

// BulkEditResult reports what an edit matched and changed. Preview and apply report identical counts for the same
// request against unchanged data.
type BulkEditResult struct {
	MatchedWorkouts   int
	MatchedInstances  int
	MatchedSets       int
	UpdatedSets       int
	ReplacedInstances int
	AddedInstances    int
	AddedSets         int
	Details           []WorkoutEdit
}

// WorkoutEdit details the edits of one workout.
type WorkoutEdit struct {
	WorkoutID  int
	OrderIndex int
	Date       time.Time
	SetChanges []SetChange
	Replaced   []Replacement
	Added      []AddedInstance
}

type SetChange struct {
	SetID  int
	Before SetValues
	After  SetValues
}

type Replacement struct {
	InstanceID    int
	OldExerciseID int
	NewExerciseID int
}

type AddedInstance struct {
	ExerciseID int
	Position   int
	Sets       []SetValues
	// Source tells where the set shape came from: explicit, scan, history or placeholder.
	Source string
}

const (
	sourceExplicit    = "explicit"
	sourceScan        = "scan"
	sourceHistory     = "history"
	sourcePlaceholder = "placeholder"
)

// planBulkEdit computes the full edit without side effects. history holds the looked up set shapes per exercise;
// a missing entry means no history.
func planBulkEdit(selected []Workout, req BulkEditRequest, history map[int][]SetValues) BulkEditResult {
	var res BulkEditResult
	filtersActive := req.SetFilters.active()
	lastSeen := make(map[int][]SetValues)

	for _, w := range selected {
		res.MatchedWorkouts++
		edit := WorkoutEdit{WorkoutID: w.ID, OrderIndex: w.OrderIndex, Date: w.Date}
		nextPosition := 0

		for _, inst := range w.Exercises {
			nextPosition = max(nextPosition, inst.Position+1)
			exerciseID := inst.ExerciseID
			matched := len(req.ExerciseIDs) == 0 || slices.Contains(req.ExerciseIDs, inst.ExerciseID)
			setMatched := false
			shape := make([]SetValues, 0, len(inst.Sets))

			for _, set := range inst.Sets {
				values := set.Values
				if matched && req.SetFilters.matches(set.Values) {
					setMatched = true
					res.MatchedSets++
					values = req.SetActions.apply(set.Values)
					if !values.equal(set.Values) {
						res.UpdatedSets++
						edit.SetChanges = append(edit.SetChanges, SetChange{SetID: set.ID, Before: set.Values, After: values})
					}
				}
				shape = append(shape, values)
			}

			if matched {
				res.MatchedInstances++
				replace := req.ReplaceExerciseID != nil && *req.ReplaceExerciseID != inst.ExerciseID &&
					(!filtersActive || setMatched)
				if replace {
					exerciseID = *req.ReplaceExerciseID
					res.ReplacedInstances++
					edit.Replaced = append(edit.Replaced, Replacement{
						InstanceID:    inst.ID,
						OldExerciseID: inst.ExerciseID,
						NewExerciseID: exerciseID,
					})
				}
			}
			lastSeen[exerciseID] = shape
		}

		for _, add := range req.Additions {
			sets, source := additionSets(add, lastSeen, history)
			edit.Added = append(edit.Added, AddedInstance{
				ExerciseID: add.ExerciseID,
				Position:   nextPosition,
				Sets:       sets,
				Source:     source,
			})
			lastSeen[add.ExerciseID] = sets
			nextPosition++
			res.AddedInstances++
			res.AddedSets += len(sets)
		}

		if len(edit.SetChanges) > 0 || len(edit.Replaced) > 0 || len(edit.Added) > 0 {
			res.Details = append(res.Details, edit)
		}
	}
	return res
}

func additionSets(add Addition, lastSeen, history map[int][]SetValues) ([]SetValues, string) {
	switch {
	case len(add.Sets) > 0:
		return cloneShape(add.Sets), sourceExplicit
	case len(lastSeen[add.ExerciseID]) > 0:
		return cloneShape(lastSeen[add.ExerciseID]), sourceScan
	case len(history[add.ExerciseID]) > 0:
		return cloneShape(history[add.ExerciseID]), sourceHistory
	default:
		return []SetValues{{Intensity: nil, Effort: nil, Volume: nil, WeightKg: nil}}, sourcePlaceholder
	}
}

func cloneShape(sets []SetValues) []SetValues {
	out := make([]SetValues, len(sets))
	for i, s := range sets {
		out[i] = s.clone()
	}
	return out
}

// BulkEdit edits the matched sets, instances and workouts. Preview computes the result without writing; apply
// writes it in one transaction.
func (s *Service) BulkEdit(ctx context.Context, req BulkEditRequest) (BulkEditResult, error) {
	ctx = logging.WithAttrs(ctx, slog.String("plan_application_id", req.ApplicationID.String()),
		slog.String("mode", string(req.Mode)))
	if err := req.Selection.validate("bulk edit"); err != nil {
		return BulkEditResult{}, err
	}

	referenced := make([]int, 0, len(req.Additions)+1)
	if req.ReplaceExerciseID != nil {
		referenced = append(referenced, *req.ReplaceExerciseID)
	}
	for _, add := range req.Additions {
		referenced = append(referenced, add.ExerciseID)
	}
	if err := s.checkExercisesExist(ctx, referenced); err != nil {
		return BulkEditResult{}, err
	}
	history, err := s.lookupHistory(ctx, req)
	if err != nil {
		return BulkEditResult{}, err
	}

	if req.Mode == ModePreview {
		var workouts []Workout
		if workouts, err = s.repo.workouts.list(ctx, s.db.ReadOnly, req.ApplicationID); err != nil {
			return BulkEditResult{}, errors.Wrap(err, "list workouts")
		}
		return planBulkEdit(req.Selection.selectWorkouts(workouts, s.now()), req, history), nil
	}

	start := time.Now()
	var res BulkEditResult
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		workouts, txErr := s.repo.workouts.list(ctx, tx, req.ApplicationID)
		if txErr != nil {
			return errors.Wrap(txErr, "list workouts")
		}
		res = planBulkEdit(req.Selection.selectWorkouts(workouts, s.now()), req, history)
		return s.repo.workouts.applyEdits(ctx, tx, res.Details)
	})
	if err != nil {
		return BulkEditResult{}, errors.Wrap(err, "bulk edit")
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "bulk edited workouts",
		slog.Int("matched_workouts", res.MatchedWorkouts),
		slog.Int("updated_sets", res.UpdatedSets),
		slog.Int("replaced_instances", res.ReplacedInstances),
		slog.Int("added_instances", res.AddedInstances),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// lookupHistory fetches the latest recorded set shape of every added exercise without explicit sets. Exhausted
// lookups fall back to no history. Timeouts abort the edit.
func (s *Service) lookupHistory(ctx context.Context, req BulkEditRequest) (map[int][]SetValues, error) {
	history := make(map[int][]SetValues)
	for _, add := range req.Additions {
		if len(add.Sets) > 0 {
			continue
		}
		if _, done := history[add.ExerciseID]; done {
			continue
		}
		sets, err := retry.Do(ctx, s.logger, "history lookup", s.cfg.Lookup,
			func(ctx context.Context) ([]SetValues, error) {
				return s.history.LatestSets(ctx, add.ExerciseID, req.ApplicationID)
			})
		switch {
		case errors.Is(err, retry.ErrLookupUnavailable):
			s.logger.LogAttrs(ctx, slog.LevelWarn, "history unavailable, copying from scan or placeholder",
				slog.Int("exercise_id", add.ExerciseID), errors.SlogError(err))
			sets = nil
		case err != nil:
			return nil, errors.Wrap(err, "look up exercise history", slog.Int("exercise_id", add.ExerciseID))
		}
		history[add.ExerciseID] = sets
	}
	return history, nil
}
