// Package schedule materializes plans into persisted workouts for an athlete and mutates them afterwards.
package schedule

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/logging"
	"github.com/myrjola/periodize/internal/plan"
	"github.com/myrjola/periodize/internal/retry"
	"github.com/myrjola/periodize/internal/sqlite"
)

var ErrInvalidTransition = errors.NewSentinel("invalid status transition")

// Config tunes the service. Zero values fall back to defaults.
type Config struct {
	Lookup               retry.Policy
	MaxConcurrentLookups int
	// Catalog and History default to the database.
	Catalog ExerciseCatalog
	History HistoryLookup
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service materializes plans and mutates the resulting workouts.
type Service struct {
	db      *sqlite.Database
	repo    *repository
	logger  *slog.Logger
	table   *load.Table
	cfg     Config
	catalog ExerciseCatalog
	history HistoryLookup
}

const defaultMaxConcurrentLookups = 4

// NewService creates a new schedule service.
func NewService(db *sqlite.Database, logger *slog.Logger, table *load.Table, cfg Config) *Service {
	repo := newRepositoryFactory(db, logger).newRepository()
	if cfg.Lookup.Attempts == 0 {
		cfg.Lookup = retry.DefaultPolicy
	}
	if cfg.MaxConcurrentLookups <= 0 {
		cfg.MaxConcurrentLookups = defaultMaxConcurrentLookups
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Service{
		db:      db,
		repo:    repo,
		logger:  logger,
		table:   table,
		cfg:     cfg,
		catalog: cfg.Catalog,
		history: cfg.History,
	}
	if s.catalog == nil {
		s.catalog = repo.exercises
	}
	if s.history == nil {
		s.history = repo.workouts
	}
	return s
}

// Table returns the load table used to resolve sets and estimate maxes.
func (s *Service) Table() *load.Table {
	return s.table
}

func (s *Service) now() time.Time {
	return s.cfg.Now()
}

// CreateExercise adds an exercise to the catalog.
func (s *Service) CreateExercise(ctx context.Context, name string) (Exercise, error) {
	ex, err := s.repo.exercises.Create(ctx, name)
	if err != nil {
		return Exercise{}, errors.Wrap(err, "create exercise", slog.String("name", name))
	}
	return ex, nil
}

// ListExercises returns the catalog sorted by name.
func (s *Service) ListExercises(ctx context.Context) ([]Exercise, error) {
	exercises, err := s.repo.exercises.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list exercises")
	}
	return exercises, nil
}

// RecordTrainingMax stores a performance that later seeds plan applications.
func (s *Service) RecordTrainingMax(ctx context.Context, tm load.TrainingMax) (load.TrainingMax, error) {
	if err := s.checkExercisesExist(ctx, []int{tm.ExerciseID}); err != nil {
		return load.TrainingMax{}, err
	}
	created, err := s.repo.maxes.Create(ctx, tm)
	if err != nil {
		return load.TrainingMax{}, errors.Wrap(err, "record training max", slog.Int("exercise_id", tm.ExerciseID))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "recorded training max",
		slog.Int("training_max_id", created.ID),
		slog.Int("exercise_id", created.ExerciseID),
		slog.Float64("one_rep_max_kg", created.OneRepMax(s.table)))
	return created, nil
}

// LatestTrainingMaxIDs returns the latest training max of every exercise recorded on or before date.
func (s *Service) LatestTrainingMaxIDs(ctx context.Context, date time.Time) ([]int, error) {
	ids, err := s.repo.maxes.LatestIDs(ctx, date)
	if err != nil {
		return nil, errors.Wrap(err, "latest training maxes")
	}
	return ids, nil
}

// ApplyRequest materializes Plan from StartDate seeded with the given training maxes.
type ApplyRequest struct {
	Plan           plan.Plan
	StartDate      time.Time
	TrainingMaxIDs []int
	Rounding       load.Rounding
	ComputeWeights bool
	// GenerateWorkouts persists the schedule as a new plan application.
	GenerateWorkouts bool
}

// ApplyResult always carries the calculated schedule. ApplicationID and WorkoutIDs are set when workouts were
// generated.
type ApplyResult struct {
	ApplicationID uuid.UUID
	Schedule      plan.Schedule
	WorkoutIDs    []int
	// Next is the first workout that is not completed, nil for an empty plan.
	Next *WorkoutSummary
}

// Apply materializes a plan. Unknown exercises, missing training maxes and coverage gaps abort the call before
// anything is written.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	start := time.Now()
	ctx = logging.WithAttrs(ctx, slog.String("plan", req.Plan.Name))

	if err := s.checkExercisesExist(ctx, req.Plan.ExerciseIDs()); err != nil {
		return ApplyResult{}, errors.Wrap(err, "check plan exercises")
	}
	maxes, err := s.repo.maxes.ListByIDs(ctx, req.TrainingMaxIDs)
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "load training maxes")
	}
	sched, err := plan.Materialize(req.Plan, maxes, s.table, plan.Options{
		StartDate:      req.StartDate,
		Rounding:       req.Rounding,
		ComputeWeights: req.ComputeWeights,
	})
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "materialize plan")
	}
	for _, gap := range sched.Gaps {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "unresolved set", slog.String("gap", gap.String()))
	}

	res := ApplyResult{ApplicationID: uuid.Nil, Schedule: sched, WorkoutIDs: nil, Next: nil}
	if !req.GenerateWorkouts {
		if len(sched.Days) > 0 {
			d := sched.Days[0]
			res.Next = &WorkoutSummary{ID: 0, OrderIndex: d.OrderIndex, Date: d.Date, Label: d.Label, Status: StatusPlanned}
		}
		return res, nil
	}

	app := Application{
		ID:        uuid.New(),
		PlanName:  req.Plan.Name,
		StartDate: dateOf(req.StartDate),
		CreatedAt: s.now(),
	}
	ctx = logging.WithAttrs(ctx, slog.String("plan_application_id", app.ID.String()))
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		res.WorkoutIDs, txErr = s.repo.workouts.create(ctx, tx, app, sched.Days)
		return txErr
	})
	if err != nil {
		return ApplyResult{}, errors.Wrap(err, "persist plan application")
	}
	res.ApplicationID = app.ID
	if res.Next, err = s.NextWorkout(ctx, app.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return ApplyResult{}, err
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "applied plan",
		slog.Int("workouts", len(res.WorkoutIDs)),
		slog.Int("gaps", len(sched.Gaps)),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// GetApplication returns a plan application.
func (s *Service) GetApplication(ctx context.Context, id uuid.UUID) (Application, error) {
	app, err := s.repo.workouts.getApplication(ctx, s.db.ReadOnly, id)
	if err != nil {
		return Application{}, errors.Wrap(err, "get plan application")
	}
	return app, nil
}

// ListWorkouts returns the workouts of an application in order index order.
func (s *Service) ListWorkouts(ctx context.Context, appID uuid.UUID) ([]Workout, error) {
	workouts, err := s.repo.workouts.list(ctx, s.db.ReadOnly, appID)
	if err != nil {
		return nil, errors.Wrap(err, "list workouts")
	}
	return workouts, nil
}

// NextWorkout returns the first workout that is not completed. It returns nil when every workout is completed.
func (s *Service) NextWorkout(ctx context.Context, appID uuid.UUID) (*WorkoutSummary, error) {
	workouts, err := s.ListWorkouts(ctx, appID)
	if err != nil {
		return nil, err
	}
	for _, w := range workouts {
		if w.Status != StatusCompleted {
			summary := w.summary()
			return &summary, nil
		}
	}
	return nil, nil //nolint:nilnil // no incomplete workout left.
}

// StartWorkout marks a planned or skipped workout as in progress.
func (s *Service) StartWorkout(ctx context.Context, workoutID int) error {
	return s.transition(ctx, workoutID, StatusInProgress, StatusPlanned, StatusSkipped)
}

// CompleteWorkout marks a workout as completed now. Completed workouts are excluded from every later mutation.
func (s *Service) CompleteWorkout(ctx context.Context, workoutID int) error {
	return s.transition(ctx, workoutID, StatusCompleted, StatusPlanned, StatusInProgress)
}

// SkipWorkout marks a planned workout as skipped.
func (s *Service) SkipWorkout(ctx context.Context, workoutID int) error {
	return s.transition(ctx, workoutID, StatusSkipped, StatusPlanned)
}

func (s *Service) transition(ctx context.Context, workoutID int, to Status, from ...Status) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		w, err := s.repo.workouts.getWorkout(ctx, tx, workoutID)
		if err != nil {
			return err
		}
		allowed := false
		for _, f := range from {
			allowed = allowed || w.Status == f
		}
		if !allowed {
			return errors.Wrap(ErrInvalidTransition, "workout status",
				slog.String("from", string(w.Status)), slog.String("to", string(to)))
		}
		var completedAt *time.Time
		if to == StatusCompleted {
			now := s.now()
			completedAt = &now
		}
		return s.repo.workouts.setStatus(ctx, tx, workoutID, to, completedAt)
	})
	if err != nil {
		return errors.Wrap(err, "update workout status", slog.Int("workout_id", workoutID))
	}
	return nil
}

// DeleteApplication removes an application with all its workouts, exercise instances and sets.
func (s *Service) DeleteApplication(ctx context.Context, appID uuid.UUID) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.repo.workouts.deleteApplication(ctx, tx, appID)
	})
	if err != nil {
		return errors.Wrap(err, "delete plan application", slog.String("plan_application_id", appID.String()))
	}
	return nil
}
