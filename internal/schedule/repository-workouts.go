package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/plan"
	"github.com/myrjola/periodize/internal/sqlite"
)

// sqliteWorkoutRepository stores plan applications and their materialized workouts.
type sqliteWorkoutRepository struct {
	baseRepository
}

func newSQLiteWorkoutRepository(db *sqlite.Database, logger *slog.Logger) *sqliteWorkoutRepository {
	return &sqliteWorkoutRepository{baseRepository: newBaseRepository(db, logger)}
}

// create persists the application and one workout per scheduled day and returns the workout ids in order.
func (r *sqliteWorkoutRepository) create(
	ctx context.Context,
	tx *sql.Tx,
	app Application,
	days []plan.ScheduledDay,
) ([]int, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO plan_applications (id, plan_name, start_date, created_at) VALUES (?, ?, ?, ?)`,
		app.ID.String(), app.PlanName, formatDate(app.StartDate), formatTimestamp(app.CreatedAt)); err != nil {
		return nil, fmt.Errorf("insert plan application: %w", err)
	}

	ids := make([]int, 0, len(days))
	for _, day := range days {
		var workoutID int
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO workouts (plan_application_id, order_index, workout_date, label)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			app.ID.String(), day.OrderIndex, formatDate(day.Date), day.Label).Scan(&workoutID); err != nil {
			return nil, fmt.Errorf("insert workout %d: %w", day.OrderIndex, err)
		}
		for position, ex := range day.Exercises {
			sets := make([]SetValues, len(ex.Sets))
			for i, set := range ex.Sets {
				sets[i] = SetValues{
					Intensity: set.Load.Intensity,
					Effort:    set.Load.Effort,
					Volume:    set.Load.Volume,
					WeightKg:  set.WeightKg,
				}
			}
			if _, err := r.insertInstance(ctx, tx, workoutID, ex.ExerciseID, position, sets); err != nil {
				return nil, err
			}
		}
		ids = append(ids, workoutID)
	}
	return ids, nil
}

func (r *sqliteWorkoutRepository) insertInstance(
	ctx context.Context,
	tx *sql.Tx,
	workoutID, exerciseID, position int,
	sets []SetValues,
) (int, error) {
	var instanceID int
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO exercise_instances (workout_id, exercise_id, position) VALUES (?, ?, ?) RETURNING id`,
		workoutID, exerciseID, position).Scan(&instanceID); err != nil {
		return 0, fmt.Errorf("insert exercise instance: %w", err)
	}
	for number, set := range sets {
		volume, open := volumeColumns(set.Volume)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exercise_sets (instance_id, set_number, intensity, effort, volume, volume_open, weight_kg)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			instanceID, number, nullFloat(set.Intensity), nullFloat(set.Effort), volume, open,
			nullFloat(set.WeightKg)); err != nil {
			return 0, fmt.Errorf("insert exercise set: %w", err)
		}
	}
	return instanceID, nil
}

func (r *sqliteWorkoutRepository) getApplication(ctx context.Context, q querier, id uuid.UUID) (Application, error) {
	var (
		app                  Application
		startDate, createdAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT plan_name, start_date, created_at FROM plan_applications WHERE id = ?`, id.String()).
		Scan(&app.PlanName, &startDate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Application{}, errors.Wrap(ErrNotFound, "plan application",
			slog.String("plan_application_id", id.String()))
	}
	if err != nil {
		return Application{}, fmt.Errorf("query plan application: %w", err)
	}
	app.ID = id
	if app.StartDate, err = parseDate(startDate); err != nil {
		return Application{}, fmt.Errorf("parse start date: %w", err)
	}
	created, err := parseTimestamp(sql.NullString{String: createdAt, Valid: true})
	if err != nil {
		return Application{}, err
	}
	app.CreatedAt = *created
	return app, nil
}

// list loads every workout of an application with its exercises and sets, sorted by order index.
func (r *sqliteWorkoutRepository) list(ctx context.Context, q querier, appID uuid.UUID) ([]Workout, error) {
	if _, err := r.getApplication(ctx, q, appID); err != nil {
		return nil, err
	}

	workouts, err := r.queryWorkouts(ctx, q, `
		SELECT id, order_index, workout_date, label, status, completed_at
		FROM workouts
		WHERE plan_application_id = ?
		ORDER BY order_index`, appID.String())
	if err != nil {
		return nil, err
	}
	for i := range workouts {
		workouts[i].ApplicationID = appID
	}

	instances, err := r.queryInstances(ctx, q, appID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]*Workout, len(workouts))
	for i := range workouts {
		byID[workouts[i].ID] = &workouts[i]
	}
	for _, inst := range instances {
		if w, ok := byID[inst.WorkoutID]; ok {
			w.Exercises = append(w.Exercises, inst)
		}
	}
	return workouts, nil
}

func (r *sqliteWorkoutRepository) queryWorkouts(
	ctx context.Context,
	q querier,
	query string,
	args ...any,
) ([]Workout, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var workouts []Workout
	for rows.Next() {
		var (
			w           Workout
			date        string
			completedAt sql.NullString
		)
		if err = rows.Scan(&w.ID, &w.OrderIndex, &date, &w.Label, &w.Status, &completedAt); err != nil {
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		if w.Date, err = parseDate(date); err != nil {
			return nil, fmt.Errorf("parse workout date: %w", err)
		}
		if w.CompletedAt, err = parseTimestamp(completedAt); err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return workouts, nil
}

// queryInstances returns the exercise instances of an application with their sets, ordered by position.
func (r *sqliteWorkoutRepository) queryInstances(ctx context.Context, q querier, appID uuid.UUID) ([]ExerciseInstance, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ei.id, ei.workout_id, ei.exercise_id, ei.position,
		       es.id, es.set_number, es.intensity, es.effort, es.volume, es.volume_open, es.weight_kg
		FROM exercise_instances ei
		         JOIN workouts w ON w.id = ei.workout_id
		         LEFT JOIN exercise_sets es ON es.instance_id = ei.id
		WHERE w.plan_application_id = ?
		ORDER BY ei.workout_id, ei.position, ei.id, es.set_number`, appID.String())
	if err != nil {
		return nil, fmt.Errorf("query exercise instances: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var instances []ExerciseInstance
	for rows.Next() {
		var (
			inst                        ExerciseInstance
			setID, setNumber, volume    sql.NullInt64
			intensity, effort, weightKg sql.NullFloat64
			volumeOpen                  sql.NullBool
		)
		if err = rows.Scan(&inst.ID, &inst.WorkoutID, &inst.ExerciseID, &inst.Position,
			&setID, &setNumber, &intensity, &effort, &volume, &volumeOpen, &weightKg); err != nil {
			return nil, fmt.Errorf("scan exercise instance: %w", err)
		}
		if n := len(instances); n == 0 || instances[n-1].ID != inst.ID {
			instances = append(instances, inst)
		}
		if !setID.Valid {
			continue
		}
		last := &instances[len(instances)-1]
		last.Sets = append(last.Sets, Set{
			ID:         int(setID.Int64),
			InstanceID: inst.ID,
			Number:     int(setNumber.Int64),
			Values: SetValues{
				Intensity: floatPtr(intensity),
				Effort:    floatPtr(effort),
				Volume:    volumeFromColumns(volume, volumeOpen.Bool),
				WeightKg:  floatPtr(weightKg),
			},
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return instances, nil
}

func (r *sqliteWorkoutRepository) getWorkout(ctx context.Context, q querier, id int) (Workout, error) {
	workouts, err := r.queryWorkouts(ctx, q, `
		SELECT id, order_index, workout_date, label, status, completed_at FROM workouts WHERE id = ?`, id)
	if err != nil {
		return Workout{}, err
	}
	if len(workouts) == 0 {
		return Workout{}, errors.Wrap(ErrNotFound, "workout", slog.Int("workout_id", id))
	}
	var appID string
	if err = q.QueryRowContext(ctx, "SELECT plan_application_id FROM workouts WHERE id = ?", id).
		Scan(&appID); err != nil {
		return Workout{}, fmt.Errorf("query workout application: %w", err)
	}
	w := workouts[0]
	if w.ApplicationID, err = uuid.Parse(appID); err != nil {
		return Workout{}, fmt.Errorf("parse plan application id: %w", err)
	}
	return w, nil
}

func (r *sqliteWorkoutRepository) setStatus(
	ctx context.Context,
	tx *sql.Tx,
	id int,
	status Status,
	completedAt *time.Time,
) error {
	var completed sql.NullString
	if completedAt != nil {
		completed = sql.NullString{String: formatTimestamp(*completedAt), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE workouts SET status = ?, completed_at = ? WHERE id = ?",
		status, completed, id); err != nil {
		return fmt.Errorf("update workout status: %w", err)
	}
	return nil
}

// reindex applies changes in two passes. The first pass moves every changed workout past both the live indices
// and the final indices in a single statement, so the second pass can write final indices one row at a time
// without ever meeting an index that is still in use.
func (r *sqliteWorkoutRepository) reindex(
	ctx context.Context,
	tx *sql.Tx,
	appID uuid.UUID,
	workouts []Workout,
	changes []WorkoutChange,
) error {
	if len(changes) == 0 {
		return nil
	}
	minLive, maxLive := workouts[0].OrderIndex, workouts[0].OrderIndex
	for _, w := range workouts {
		minLive, maxLive = min(minLive, w.OrderIndex), max(maxLive, w.OrderIndex)
	}
	ceiling := maxLive
	ids := make([]any, 0, len(changes)+2)
	for _, c := range changes {
		ceiling = max(ceiling, c.NewOrderIndex)
		ids = append(ids, c.WorkoutID)
	}
	offset := ceiling - minLive + 1

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(changes)), ",")
	bump := fmt.Sprintf(`UPDATE workouts SET order_index = order_index + ?
		WHERE plan_application_id = ? AND id IN (%s)`, placeholders) //nolint:gosec // only placeholders.
	args := append([]any{offset, appID.String()}, ids...)
	if _, err := tx.ExecContext(ctx, bump, args...); err != nil {
		return fmt.Errorf("bump order indices by %d: %w", offset, err)
	}

	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, `
			UPDATE workouts SET order_index = ?, workout_date = ? WHERE id = ? AND order_index = ?`,
			c.NewOrderIndex, formatDate(c.NewDate), c.WorkoutID, c.OldOrderIndex+offset); err != nil {
			return fmt.Errorf("finalize workout %d: %w", c.WorkoutID, err)
		}
	}
	return nil
}

// applyEdits writes the set changes, exercise replacements and additions of a bulk edit.
func (r *sqliteWorkoutRepository) applyEdits(ctx context.Context, tx *sql.Tx, edits []WorkoutEdit) error {
	for _, edit := range edits {
		for _, c := range edit.SetChanges {
			volume, open := volumeColumns(c.After.Volume)
			if _, err := tx.ExecContext(ctx, `
				UPDATE exercise_sets
				SET intensity = ?, effort = ?, volume = ?, volume_open = ?, weight_kg = ?
				WHERE id = ?`,
				nullFloat(c.After.Intensity), nullFloat(c.After.Effort), volume, open, nullFloat(c.After.WeightKg),
				c.SetID); err != nil {
				return fmt.Errorf("update set %d: %w", c.SetID, err)
			}
		}
		for _, rep := range edit.Replaced {
			if _, err := tx.ExecContext(ctx, "UPDATE exercise_instances SET exercise_id = ? WHERE id = ?",
				rep.NewExerciseID, rep.InstanceID); err != nil {
				return fmt.Errorf("replace exercise of instance %d: %w", rep.InstanceID, err)
			}
		}
		for _, add := range edit.Added {
			if _, err := r.insertInstance(ctx, tx, edit.WorkoutID, add.ExerciseID, add.Position, add.Sets); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *sqliteWorkoutRepository) deleteApplication(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM plan_applications WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("delete plan application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, "plan application", slog.String("plan_application_id", id.String()))
	}
	return nil
}

// LatestSets implements HistoryLookup from workouts of other applications, latest date first.
func (r *sqliteWorkoutRepository) LatestSets(ctx context.Context, exerciseID int, exclude uuid.UUID) ([]SetValues, error) {
	var instanceID int
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT ei.id
		FROM exercise_instances ei
		         JOIN workouts w ON w.id = ei.workout_id
		WHERE ei.exercise_id = ? AND w.plan_application_id <> ?
		ORDER BY w.workout_date DESC, ei.id DESC
		LIMIT 1`, exerciseID, exclude.String()).Scan(&instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest instance: %w", err)
	}

	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT intensity, effort, volume, volume_open, weight_kg
		FROM exercise_sets
		WHERE instance_id = ?
		ORDER BY set_number`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query latest sets: %w", err)
	}
	defer r.closeRows(ctx, rows)

	var sets []SetValues
	for rows.Next() {
		var (
			intensity, effort, weightKg sql.NullFloat64
			volume                      sql.NullInt64
			open                        bool
		)
		if err = rows.Scan(&intensity, &effort, &volume, &open, &weightKg); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		sets = append(sets, SetValues{
			Intensity: floatPtr(intensity),
			Effort:    floatPtr(effort),
			Volume:    volumeFromColumns(volume, open),
			WeightKg:  floatPtr(weightKg),
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return slices.Clip(sets), nil
}
