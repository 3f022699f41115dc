package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/sqlite"
)

// sqliteExerciseRepository is the exercise catalog backed by the exercises table.
type sqliteExerciseRepository struct {
	baseRepository
}

func newSQLiteExerciseRepository(db *sqlite.Database, logger *slog.Logger) *sqliteExerciseRepository {
	return &sqliteExerciseRepository{baseRepository: newBaseRepository(db, logger)}
}

func (r *sqliteExerciseRepository) Create(ctx context.Context, name string) (Exercise, error) {
	ex := Exercise{ID: 0, Name: name}
	err := r.db.ReadWrite.QueryRowContext(ctx,
		"INSERT INTO exercises (name) VALUES (?) RETURNING id", name).Scan(&ex.ID)
	if err != nil {
		return Exercise{}, fmt.Errorf("insert exercise: %w", err)
	}
	return ex, nil
}

func (r *sqliteExerciseRepository) List(ctx context.Context) (_ []Exercise, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, "SELECT id, name FROM exercises ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var exercises []Exercise
	for rows.Next() {
		var ex Exercise
		if err = rows.Scan(&ex.ID, &ex.Name); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		exercises = append(exercises, ex)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return exercises, nil
}

// ExerciseExists implements ExerciseCatalog.
func (r *sqliteExerciseRepository) ExerciseExists(ctx context.Context, id int) (bool, error) {
	var exists bool
	if err := r.db.ReadOnly.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM exercises WHERE id = ?)", id).Scan(&exists); err != nil {
		return false, fmt.Errorf("query exercise %d: %w", id, err)
	}
	return exists, nil
}

// sqliteTrainingMaxRepository stores the append-only training max history.
type sqliteTrainingMaxRepository struct {
	baseRepository
}

func newSQLiteTrainingMaxRepository(db *sqlite.Database, logger *slog.Logger) *sqliteTrainingMaxRepository {
	return &sqliteTrainingMaxRepository{baseRepository: newBaseRepository(db, logger)}
}

func (r *sqliteTrainingMaxRepository) Create(ctx context.Context, tm load.TrainingMax) (load.TrainingMax, error) {
	err := r.db.ReadWrite.QueryRowContext(ctx, `
		INSERT INTO training_maxes (exercise_id, weight_kg, reps, effort, verified_one_rep_max_kg, recorded_on)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		tm.ExerciseID, tm.WeightKg, tm.Reps, nullFloat(tm.Effort), nullFloat(tm.VerifiedOneRepMaxKg),
		formatDate(tm.RecordedOn)).Scan(&tm.ID)
	if err != nil {
		return load.TrainingMax{}, fmt.Errorf("insert training max: %w", err)
	}
	tm.RecordedOn = dateOf(tm.RecordedOn)
	return tm, nil
}

// ListByIDs returns the training maxes with the given ids. Missing ids fail with ErrNotFound.
func (r *sqliteTrainingMaxRepository) ListByIDs(ctx context.Context, ids []int) ([]load.TrainingMax, error) {
	maxes := make([]load.TrainingMax, 0, len(ids))
	for _, id := range ids {
		tm, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		maxes = append(maxes, tm)
	}
	return maxes, nil
}

func (r *sqliteTrainingMaxRepository) get(ctx context.Context, id int) (load.TrainingMax, error) {
	var (
		tm               load.TrainingMax
		effort, verified sql.NullFloat64
		recordedOn       string
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT id, exercise_id, weight_kg, reps, effort, verified_one_rep_max_kg, recorded_on
		FROM training_maxes
		WHERE id = ?`, id).Scan(&tm.ID, &tm.ExerciseID, &tm.WeightKg, &tm.Reps, &effort, &verified, &recordedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return load.TrainingMax{}, errors.Wrap(ErrNotFound, "training max", slog.Int("training_max_id", id))
	}
	if err != nil {
		return load.TrainingMax{}, fmt.Errorf("query training max %d: %w", id, err)
	}
	tm.Effort = floatPtr(effort)
	tm.VerifiedOneRepMaxKg = floatPtr(verified)
	if tm.RecordedOn, err = parseDate(recordedOn); err != nil {
		return load.TrainingMax{}, fmt.Errorf("parse recorded_on: %w", err)
	}
	return tm, nil
}

// LatestIDs returns the id of the most recent training max of every exercise recorded on or before date.
func (r *sqliteTrainingMaxRepository) LatestIDs(ctx context.Context, date time.Time) (_ []int, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT (SELECT tm.id
		        FROM training_maxes tm
		        WHERE tm.exercise_id = e.exercise_id AND tm.recorded_on <= :date
		        ORDER BY tm.recorded_on DESC, tm.id DESC
		        LIMIT 1)
		FROM (SELECT DISTINCT exercise_id FROM training_maxes WHERE recorded_on <= :date) e
		ORDER BY e.exercise_id`, sql.Named("date", formatDate(date)))
	if err != nil {
		return nil, fmt.Errorf("query latest training maxes: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan training max id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}
