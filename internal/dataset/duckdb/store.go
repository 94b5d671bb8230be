// Package duckdb implements the dataset store on an embedded DuckDB database
// file.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

const insertBatchSize = 500

type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Open opens (or creates) the dataset database at path. An empty path opens
// an in-memory database, which tests use.
func Open(path string, queryTimeout time.Duration) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open dataset db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping dataset db: %w", err)
	}
	if queryTimeout <= 0 {
		queryTimeout = 15 * time.Second
	}
	return &Store{db: db, queryTimeout: queryTimeout}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ExecuteSelect(ctx context.Context, sqlText string) (dataset.Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return dataset.Result{}, fmt.Errorf("sql is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return dataset.Result{}, fmt.Errorf("execute select: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return dataset.Result{}, fmt.Errorf("select columns: %w", err)
	}

	result := dataset.Result{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return dataset.Result{}, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return dataset.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func (s *Store) ExecuteUpdate(ctx context.Context, sqlText string) (int64, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return 0, fmt.Errorf("sql is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, sqlText)
	if err != nil {
		return 0, fmt.Errorf("execute update: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update rows affected: %w", err)
	}
	return affected, nil
}

func (s *Store) CreateTable(ctx context.Context, table string, columns []dataset.Column, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}

	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, quoteIdent(dataset.OrderColumn)+" BIGINT")
	for _, column := range columns {
		defs = append(defs, quoteIdent(column.Name)+" "+column.Type)
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create dataset table %q: %w", table, err)
	}

	placeholders := make([]string, len(columns)+1)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(placeholders, ", "))

	for start := 0; start < len(rows); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin insert batch: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prepare insert: %w", err)
		}
		for offset := start; offset < end; offset++ {
			args := make([]any, 0, len(columns)+1)
			args = append(args, int64(offset+1))
			args = append(args, rows[offset]...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				return fmt.Errorf("insert row %d: %w", offset+1, err)
			}
		}
		if err := stmt.Close(); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("close insert statement: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit insert batch: %w", err)
		}
	}
	return nil
}

func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return fmt.Errorf("drop dataset table %q: %w", table, err)
	}
	return nil
}

func (s *Store) Schema(ctx context.Context, table string) ([]dataset.Column, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_name = ?
ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("query schema for %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]dataset.Column, 0)
	for rows.Next() {
		var column dataset.Column
		if err := rows.Scan(&column.Name, &column.Type); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		if column.Name == dataset.OrderColumn {
			continue
		}
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}
	if len(columns) == 0 {
		return nil, dataset.ErrNotFound
	}
	return columns, nil
}

func (s *Store) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(
		"SELECT DISTINCT CAST(%s AS VARCHAR) FROM %s WHERE %s IS NOT NULL LIMIT %d",
		quoteIdent(column), quoteIdent(table), quoteIdent(column), limit,
	)

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query distinct values for %s.%s: %w", table, column, err)
	}
	defer func() { _ = rows.Close() }()

	values := make([]string, 0, limit)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}
	return values, nil
}

func (s *Store) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %q: %w", table, err)
	}
	return count, nil
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
