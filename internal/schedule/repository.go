package schedule

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/myrjola/periodize/internal/errors"
	"github.com/myrjola/periodize/internal/load"
	"github.com/myrjola/periodize/internal/sqlite"
)

var ErrNotFound = errors.NewSentinel("not found")

const timestampFormat = "2006-01-02T15:04:05.000Z"

// querier is satisfied by both *sql.DB and *sql.Tx so that reads can join a write transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newBaseRepository(db *sqlite.Database, logger *slog.Logger) baseRepository {
	return baseRepository{db: db, logger: logger}
}

// closeRows closes rows and logs a failure. Errors from iteration are reported by rows.Err.
func (r baseRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to close rows", errors.SlogError(err))
	}
}

type repository struct {
	exercises *sqliteExerciseRepository
	maxes     *sqliteTrainingMaxRepository
	workouts  *sqliteWorkoutRepository
}

type repositoryFactory struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newRepositoryFactory(db *sqlite.Database, logger *slog.Logger) *repositoryFactory {
	return &repositoryFactory{db: db, logger: logger}
}

func (f *repositoryFactory) newRepository() *repository {
	return &repository{
		exercises: newSQLiteExerciseRepository(f.db, f.logger),
		maxes:     newSQLiteTrainingMaxRepository(f.db, f.logger),
		workouts:  newSQLiteWorkoutRepository(f.db, f.logger),
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func parseTimestamp(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil //nolint:nilnil // absent timestamp.
	}
	t, err := time.Parse(timestampFormat, s.String)
	if err != nil {
		return nil, errors.Wrap(err, "parse timestamp", slog.String("value", s.String))
	}
	return &t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{Float64: 0, Valid: false}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// volumeColumns splits a volume into its count and open-range flag columns.
func volumeColumns(v *load.Volume) (sql.NullInt64, bool) {
	if v == nil {
		return sql.NullInt64{Int64: 0, Valid: false}, false
	}
	return sql.NullInt64{Int64: int64(v.Reps()), Valid: true}, v.IsOpen()
}

func volumeFromColumns(reps sql.NullInt64, open bool) *load.Volume {
	if !reps.Valid {
		return nil
	}
	v := load.Exact(int(reps.Int64))
	if open {
		v = load.AtLeast(int(reps.Int64))
	}
	return &v
}
