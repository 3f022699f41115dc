package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/logging"
	"github.com/myrjola/periodize/internal/sqlite"
)

var (
	ErrUniquenessConflict = errors.NewSentinel("order index conflict")
	ErrInvalidShift       = errors.NewSentinel("invalid shift")
)

// ShiftRequest moves the selected workouts of an application in time and order.
type ShiftRequest struct {
	ApplicationID uuid.UUID
	Selection     Selection
	// DayDelta moves every selected workout, or only the first one when restructuring.
	DayDelta int
	// IndexDelta is added to the order index of every selected workout.
	IndexDelta  int
	Restructure *Restructure
	Mode        Mode
}

// Restructure recomputes the spacing between the selected workouts.
type Restructure struct {
	// RestDays fixes the gap between consecutive workouts to RestDays+1 days. Nil keeps the original spacing.
	RestDays *int
	// ExtraDays is inserted before every position matched by Every or After. Both patterns add up.
	ExtraDays int
	// Every inserts ExtraDays before each position p with p % Every == 0, counting from zero. Zero disables it.
	Every int
	// After inserts ExtraDays after each listed 1-based position.
	After []int
}

// WorkoutChange is the planned or applied move of one workout.
type WorkoutChange struct {
	WorkoutID     int
	OldOrderIndex int
	NewOrderIndex int
	OldDate       time.Time
	NewDate       time.Time
}

// ShiftResult counts the workouts whose date or order index changes.
type ShiftResult struct {
	Affected int
	Changes  []WorkoutChange
}

func (r ShiftRequest) isNoop() bool {
	return r.DayDelta == 0 && r.IndexDelta == 0 && r.Restructure == nil
}

// planShift computes the new position of every selected workout, which must be sorted by order index. Workouts
// that do not move are left out.
func planShift(selected []Workout, req ShiftRequest) []WorkoutChange {
	var changes []WorkoutChange
	var prevOld, prevNew time.Time
	for p, w := range selected {
		oldDate := dateOf(w.Date)
		newDate := oldDate.AddDate(0, 0, req.DayDelta)
		if req.Restructure != nil && p > 0 {
			newDate = prevNew.AddDate(0, 0, req.Restructure.gap(p, prevOld, oldDate))
		}
		prevOld, prevNew = oldDate, newDate

		change := WorkoutChange{
			WorkoutID:     w.ID,
			OldOrderIndex: w.OrderIndex,
			NewOrderIndex: w.OrderIndex + req.IndexDelta,
			OldDate:       oldDate,
			NewDate:       newDate,
		}
		if change.NewOrderIndex != change.OldOrderIndex || !change.NewDate.Equal(change.OldDate) {
			changes = append(changes, change)
		}
	}
	return changes
}

// gap returns the days between position p-1 and p.
func (r Restructure) gap(p int, prevOld, old time.Time) int {
	var days int
	if r.RestDays != nil {
		days = *r.RestDays + 1
	} else {
		days = int(old.Sub(prevOld).Hours() / 24) //nolint:mnd // hours per day.
	}
	if r.Every > 0 && p%r.Every == 0 {
		days += r.ExtraDays
	}
	// Inserting after 1-based position k lands before 0-based position k.
	if slices.Contains(r.After, p) {
		days += r.ExtraDays
	}
	return days
}

// Shift moves the selected workouts. In apply mode the change is persisted atomically with a two-phase reindex so
// that no intermediate state holds two workouts with the same order index.
func (s *Service) Shift(ctx context.Context, req ShiftRequest) (ShiftResult, error) {
	ctx = logging.WithAttrs(ctx, slog.String("plan_application_id", req.ApplicationID.String()),
		slog.String("mode", string(req.Mode)))
	if err := req.Selection.validate("shift"); err != nil {
		return ShiftResult{}, err
	}
	if req.Restructure != nil {
		if req.Restructure.Every < 0 || req.Restructure.ExtraDays < 0 ||
			(req.Restructure.RestDays != nil && *req.Restructure.RestDays < 0) {
			return ShiftResult{}, fmt.Errorf("%w: negative restructure parameter", ErrInvalidShift)
		}
	}

	if req.Mode == ModePreview {
		workouts, err := s.repo.workouts.list(ctx, s.db.ReadOnly, req.ApplicationID)
		if err != nil {
			return ShiftResult{}, errors.Wrap(err, "list workouts")
		}
		changes := planShift(req.Selection.selectWorkouts(workouts, s.now()), req)
		if err = checkShift(workouts, changes); err != nil {
			return ShiftResult{}, err
		}
		return ShiftResult{Affected: len(changes), Changes: changes}, nil
	}

	if req.isNoop() {
		return ShiftResult{Affected: 0, Changes: nil}, nil
	}

	start := time.Now()
	var changes []WorkoutChange
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		workouts, err := s.repo.workouts.list(ctx, tx, req.ApplicationID)
		if err != nil {
			return errors.Wrap(err, "list workouts")
		}
		changes = planShift(req.Selection.selectWorkouts(workouts, s.now()), req)
		if err = checkShift(workouts, changes); err != nil {
			return err
		}
		return s.repo.workouts.reindex(ctx, tx, req.ApplicationID, workouts, changes)
	})
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			err = errors.Join(ErrUniquenessConflict, err)
		}
		return ShiftResult{}, errors.Wrap(err, "shift workouts")
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "shifted workouts",
		slog.Int("affected", len(changes)), slog.Duration("duration", time.Since(start)))
	return ShiftResult{Affected: len(changes), Changes: changes}, nil
}

// checkShift rejects negative indices and moves onto an index kept by an unmoved workout.
func checkShift(workouts []Workout, changes []WorkoutChange) error {
	moved := make(map[int]bool, len(changes))
	for _, c := range changes {
		moved[c.WorkoutID] = true
	}
	occupied := make(map[int]int)
	for _, w := range workouts {
		if !moved[w.ID] {
			occupied[w.OrderIndex] = w.ID
		}
	}
	for _, c := range changes {
		if c.NewOrderIndex < 0 {
			return errors.Wrap(ErrInvalidShift, "negative order index",
				slog.Int("workout_id", c.WorkoutID), slog.Int("order_index", c.NewOrderIndex))
		}
		if other, ok := occupied[c.NewOrderIndex]; ok {
			return errors.Wrap(ErrUniquenessConflict, "order index taken by an unselected workout",
				slog.Int("workout_id", c.WorkoutID), slog.Int("other_workout_id", other),
				slog.Int("order_index", c.NewOrderIndex))
		}
	}
	return nil
}
