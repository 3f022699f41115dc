package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// migrateTo brings the live schema in line with schemaDefinition declaratively.
//
// The target schema is created in an attached in-memory database and compared with the live one. Removed tables
// are dropped, new tables created and changed tables rebuilt with the 12-step procedure from
// https://www.sqlite.org/lang_altertable.html#otheralter. Indexes and triggers are synchronised afterwards.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	start := time.Now()

	detach, err := db.attachTarget(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach target schema: %w", err)
	}
	defer detach()

	// Foreign keys cannot be toggled inside a transaction.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to re-enable foreign keys",
				slog.Any("error", fkErr))
		}
	}()

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		m := migration{db: db, tx: tx}
		if err = m.tables(ctx); err != nil {
			return fmt.Errorf("migrate tables: %w", err)
		}
		for _, typ := range []string{"trigger", "index"} {
			if err = m.entities(ctx, typ); err != nil {
				return fmt.Errorf("migrate %ss: %w", typ, err)
			}
		}
		var violations []string
		if violations, err = m.strings(ctx, "SELECT \"table\" FROM pragma_foreign_key_check"); err != nil {
			return fmt.Errorf("foreign key check: %w", err)
		}
		if len(violations) > 0 {
			return fmt.Errorf("foreign key violations in %s", strings.Join(violations, ", "))
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

func (db *Database) attachTarget(ctx context.Context, schemaDefinition string) (func(), error) {
	targetDSN := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", targetDSN)
	if err != nil {
		return nil, fmt.Errorf("open target database: %w", err)
	}
	// Keep the target alive until it is attached: a shared-cache memory database disappears with its last connection.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close target database", slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("create target schema: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS target", targetDSN); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE target"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach target database", slog.Any("error", detachErr))
		}
	}, nil
}

type migration struct {
	db *Database
	tx *sql.Tx
}

// Live-only, target-only and changed entities of a schema type. The ? parameter is the type.
const (
	userEntities = "live.name NOT LIKE 'sqlite_%'"
	removedQuery = `SELECT live.name FROM sqlite_schema AS live
LEFT JOIN target.sqlite_schema AS t ON live.name = t.name AND live.type = t.type
WHERE live.type = ? AND t.type IS NULL AND ` + userEntities
	addedQuery = `SELECT t.sql FROM target.sqlite_schema AS t
LEFT JOIN sqlite_schema AS live ON live.name = t.name AND live.type = t.type
WHERE t.type = ? AND live.type IS NULL AND t.name NOT LIKE 'sqlite_%'`
	// Renaming a table quotes its name in sqlite_schema, so quotes are ignored in the comparison.
	changedQuery = `SELECT live.name, t.sql FROM sqlite_schema AS live
JOIN target.sqlite_schema AS t ON live.name = t.name AND live.type = t.type
WHERE live.type = ? AND ` + userEntities + ` AND REPLACE(live.sql, '"', '') <> REPLACE(t.sql, '"', '')`
)

func (m migration) tables(ctx context.Context) error {
	removed, err := m.strings(ctx, removedQuery, "table")
	if err != nil {
		return fmt.Errorf("query removed tables: %w", err)
	}
	for _, name := range removed {
		if err = m.exec(ctx, "dropping table", "DROP TABLE "+name); err != nil {
			return err
		}
	}

	added, err := m.strings(ctx, addedQuery, "table")
	if err != nil {
		return fmt.Errorf("query added tables: %w", err)
	}
	for _, createSQL := range added {
		if err = m.exec(ctx, "creating table", createSQL); err != nil {
			return err
		}
	}

	changed, err := m.changed(ctx, "table")
	if err != nil {
		return fmt.Errorf("query changed tables: %w", err)
	}
	for name, newSQL := range changed {
		if err = m.rebuild(ctx, name, newSQL); err != nil {
			return fmt.Errorf("rebuild %s: %w", name, err)
		}
	}
	return nil
}

// rebuild replaces table with one created from newSQL and copies the columns both versions share.
func (m migration) rebuild(ctx context.Context, table, newSQL string) error {
	temp := table + "_migration_temp"
	if err := m.exec(ctx, "creating replacement table", strings.Replace(newSQL, table, temp, 1)); err != nil {
		return err
	}
	// Quoted so that columns named after keywords survive.
	columns, err := m.strings(ctx, `SELECT '"' || t.name || '"'
FROM pragma_table_info(:table) AS live
JOIN pragma_table_info(:table, 'target') AS t ON t.name = live.name`, sql.Named("table", table))
	if err != nil {
		return fmt.Errorf("query common columns: %w", err)
	}
	common := strings.Join(columns, ", ")
	for _, step := range []struct{ msg, query string }{
		{"copying rows", fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", temp, common, common, table)},
		{"dropping old table", "DROP TABLE " + table},
		{"renaming replacement table", fmt.Sprintf("ALTER TABLE %s RENAME TO %s", temp, table)},
	} {
		if err = m.exec(ctx, step.msg, step.query); err != nil {
			return err
		}
	}
	return nil
}

// entities synchronises indexes or triggers.
func (m migration) entities(ctx context.Context, typ string) error {
	drop := "DROP " + strings.ToUpper(typ) + " "

	removed, err := m.strings(ctx, removedQuery, typ)
	if err != nil {
		return fmt.Errorf("query removed: %w", err)
	}
	for _, name := range removed {
		if err = m.exec(ctx, "dropping "+typ, drop+name); err != nil {
			return err
		}
	}

	added, err := m.strings(ctx, addedQuery, typ)
	if err != nil {
		return fmt.Errorf("query added: %w", err)
	}
	for _, createSQL := range added {
		if err = m.exec(ctx, "creating "+typ, createSQL); err != nil {
			return err
		}
	}

	changed, err := m.changed(ctx, typ)
	if err != nil {
		return fmt.Errorf("query changed: %w", err)
	}
	for name, newSQL := range changed {
		if err = m.exec(ctx, "dropping changed "+typ, drop+name); err != nil {
			return err
		}
		if err = m.exec(ctx, "recreating "+typ, newSQL); err != nil {
			return err
		}
	}
	return nil
}

func (m migration) exec(ctx context.Context, msg, query string) error {
	m.db.logger.LogAttrs(ctx, slog.LevelInfo, msg, slog.String("query", query))
	if _, err := m.tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return nil
}

func (m migration) changed(ctx context.Context, typ string) (map[string]string, error) {
	rows, err := m.tx.QueryContext(ctx, changedQuery, typ)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	changed := make(map[string]string)
	for rows.Next() {
		var name, newSQL string
		if err = rows.Scan(&name, &newSQL); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		changed[name] = newSQL
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return changed, nil
}

// strings returns the first column of every row of query.
func (m migration) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := m.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var results []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		results = append(results, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return results, nil
}
