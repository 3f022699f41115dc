package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/periodize/internal/load"
)

// Status is the lifecycle state of a materialized workout.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusSkipped    Status = "skipped"
)

// Mode selects whether a mutation is only computed or also persisted.
type Mode string

const (
	ModePreview Mode = "preview"
	ModeApply   Mode = "apply"
)

// Exercise is an entry of the exercise catalog, e.g. Back Squat.
type Exercise struct {
	ID   int
	Name string
}

// Application is one instantiation of a plan for an athlete starting on StartDate.
type Application struct {
	ID        uuid.UUID
	PlanName  string
	StartDate time.Time
	CreatedAt time.Time
}

// Workout is one materialized training day. OrderIndex is unique within its application.
type Workout struct {
	ID            int
	ApplicationID uuid.UUID
	OrderIndex    int
	Date          time.Time
	Label         string
	Status        Status
	CompletedAt   *time.Time
	Exercises     []ExerciseInstance
}

// ExerciseInstance is one exercise performed in a workout.
type ExerciseInstance struct {
	ID         int
	WorkoutID  int
	ExerciseID int
	Position   int
	Sets       []Set
}

// Set is a materialized set. Any field may be unresolved.
type Set struct {
	ID         int
	InstanceID int
	Number     int
	Values     SetValues
}

// SetValues are the editable load fields of a set.
type SetValues struct {
	Intensity *float64
	Effort    *float64
	Volume    *load.Volume
	WeightKg  *float64
}

// WorkoutSummary identifies a workout without its exercises.
type WorkoutSummary struct {
	ID         int
	OrderIndex int
	Date       time.Time
	Label      string
	Status     Status
}

func (w Workout) summary() WorkoutSummary {
	return WorkoutSummary{ID: w.ID, OrderIndex: w.OrderIndex, Date: w.Date, Label: w.Label, Status: w.Status}
}

func (v SetValues) equal(o SetValues) bool {
	return eqPtr(v.Intensity, o.Intensity) && eqPtr(v.Effort, o.Effort) &&
		eqPtr(v.Volume, o.Volume) && eqPtr(v.WeightKg, o.WeightKg)
}

func (v SetValues) clone() SetValues {
	return SetValues{
		Intensity: clonePtr(v.Intensity),
		Effort:    clonePtr(v.Effort),
		Volume:    clonePtr(v.Volume),
		WeightKg:  clonePtr(v.WeightKg),
	}
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

const dateFormat = time.DateOnly

func formatDate(t time.Time) string {
	return t.Format(dateFormat)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateFormat, s, time.UTC)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
