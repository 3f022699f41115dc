package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/retry"
	"golang.org/x/sync/errgroup"
)

// ExerciseCatalog answers whether an exercise exists. Implementations may be remote and fail transiently.
type ExerciseCatalog interface {
	ExerciseExists(ctx context.Context, id int) (bool, error)
}

// HistoryLookup returns the set shape of the most recent instance of an exercise outside the given application.
// It returns nil without an error when the exercise has no history.
type HistoryLookup interface {
	LatestSets(ctx context.Context, exerciseID int, exclude uuid.UUID) ([]SetValues, error)
}

// UnknownExercisesError lists referenced exercises missing from the catalog.
type UnknownExercisesError struct {
	IDs []int
}

func (e *UnknownExercisesError) Error() string {
	return fmt.Sprintf("unknown exercises %v", e.IDs)
}

func (e *UnknownExercisesError) Is(target error) bool {
	return target == ErrNotFound
}

// checkExercisesExist asks the catalog about every id concurrently. A lookup that stays unavailable after its
// retries fails the whole check.
func (s *Service) checkExercisesExist(ctx context.Context, ids []int) error {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		missing []int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentLookups)
	for _, id := range ids {
		g.Go(func() error {
			exists, err := retry.Do(gctx, s.logger, "exercise lookup", s.cfg.Lookup,
				func(ctx context.Context) (bool, error) {
					return s.catalog.ExerciseExists(ctx, id)
				})
			if err != nil {
				return errors.Wrap(err, "check exercise", slog.Int("exercise_id", id))
			}
			if !exists {
				mu.Lock()
				missing = append(missing, id)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // already annotated.
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return &UnknownExercisesError{IDs: missing}
	}
	return nil
}
