package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Fields maps column names to values
type Fields map[string]any

// EntryRepository writes rows into arbitrary tables
type EntryRepository struct {
	db DBTX
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db DBTX) *EntryRepository {
	return &EntryRepository{db: db}
}

// CreateEntry inserts one row into table
func (r *EntryRepository) CreateEntry(ctx context.Context, table string, fields Fields) error {
	query, args, err := buildInsert(table, fields)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// UpdateEntry sets fields on every row of table matching all of where.
// It returns the number of rows changed.
func (r *EntryRepository) UpdateEntry(ctx context.Context, table string, fields, where Fields) (int64, error) {
	query, args, err := buildUpdate(table, fields, where)
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func buildInsert(table string, fields Fields) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("no fields to insert into %s", table)
	}

	columns := sortedKeys(fields)
	names := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		names[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = fields[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "))
	return query, args, nil
}

func buildUpdate(table string, fields, where Fields) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("no fields to update in %s", table)
	}
	if len(where) == 0 {
		return "", nil, fmt.Errorf("refusing to update every row of %s", table)
	}

	args := make([]any, 0, len(fields)+len(where))

	sets := make([]string, 0, len(fields))
	for _, col := range sortedKeys(fields) {
		args = append(args, fields[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}

	conds := make([]string, 0, len(where))
	for _, col := range sortedKeys(where) {
		if where[col] == nil {
			conds = append(conds, fmt.Sprintf("%s IS NULL", pgx.Identifier{col}.Sanitize()))
			continue
		}
		args = append(args, where[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(sets, ", "),
		strings.Join(conds, " AND "))
	return query, args, nil
}

// sortedKeys gives a stable column order so identical calls build identical SQL
func sortedKeys(fields Fields) []string {
	return slices.Sorted(maps.Keys(fields))
}
