package schedule

import (
	"slices"
	"time"

	"github.com/myrjola/periodize/internal/errors"
)

var ErrFilterScope = errors.NewSentinel("filter has no scope")

// FilterScopeError rejects a mutation whose selection names no scoping dimension and would match every workout.
type FilterScopeError struct {
	Operation string
}

func (e *FilterScopeError) Error() string {
	return e.Operation + ": selection needs an order index range or list, a date range or only-future"
}

func (e *FilterScopeError) Is(target error) bool {
	return target == ErrFilterScope
}

// Selection picks workouts of one application. Set criteria are AND-ed. Completed workouts are never selected.
type Selection struct {
	// OrderFrom and OrderTo bound the order index, both inclusive.
	OrderFrom *int
	OrderTo   *int
	// OrderIndices lists order indices explicitly.
	OrderIndices []int
	// DateFrom and DateTo bound the workout date, both inclusive.
	DateFrom *time.Time
	DateTo   *time.Time
	// Statuses is a whitelist. Empty allows every status except completed.
	Statuses []Status
	// OnlyFuture keeps workouts dated today or later.
	OnlyFuture bool
}

// scoped reports whether s restricts the selection by order, date or time. A status whitelist alone is not a scope.
func (s Selection) scoped() bool {
	return s.OrderFrom != nil || s.OrderTo != nil || len(s.OrderIndices) > 0 ||
		s.DateFrom != nil || s.DateTo != nil || s.OnlyFuture
}

func (s Selection) validate(operation string) error {
	if !s.scoped() {
		return &FilterScopeError{Operation: operation}
	}
	return nil
}

func (s Selection) matches(w Workout, today time.Time) bool {
	if w.Status == StatusCompleted {
		return false
	}
	if s.OrderFrom != nil && w.OrderIndex < *s.OrderFrom {
		return false
	}
	if s.OrderTo != nil && w.OrderIndex > *s.OrderTo {
		return false
	}
	if len(s.OrderIndices) > 0 && !slices.Contains(s.OrderIndices, w.OrderIndex) {
		return false
	}
	date := dateOf(w.Date)
	if s.DateFrom != nil && date.Before(dateOf(*s.DateFrom)) {
		return false
	}
	if s.DateTo != nil && date.After(dateOf(*s.DateTo)) {
		return false
	}
	if len(s.Statuses) > 0 && !slices.Contains(s.Statuses, w.Status) {
		return false
	}
	if s.OnlyFuture && date.Before(today) {
		return false
	}
	return true
}

// selectWorkouts returns the matching workouts in order index order.
func (s Selection) selectWorkouts(workouts []Workout, now time.Time) []Workout {
	today := dateOf(now)
	var selected []Workout
	for _, w := range workouts {
		if s.matches(w, today) {
			selected = append(selected, w)
		}
	}
	slices.SortFunc(selected, func(a, b Workout) int { return a.OrderIndex - b.OrderIndex })
	return selected
}
