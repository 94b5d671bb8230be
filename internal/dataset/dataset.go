// Package dataset defines the store for uploaded tabular data. Every dataset
// is one table in the embedded analytical engine, keyed by its dataset ID.
package dataset

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("dataset: not found")

// OrderColumn is the surrogate order column every dataset table carries. It
// is assigned 1..N in upload order, so "first/last N rows" queries have a
// stable ordering to sort on.
const OrderColumn = "row_seq"

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result is an executed SELECT: column order as produced by the statement,
// rows as column→value maps with NULLs normalized to nil.
type Result struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type Store interface {
	// ExecuteSelect runs a validated SELECT statement.
	ExecuteSelect(ctx context.Context, sqlText string) (Result, error)
	// ExecuteUpdate runs a validated UPDATE statement and reports the number
	// of affected rows.
	ExecuteUpdate(ctx context.Context, sqlText string) (int64, error)
	// CreateTable materializes an uploaded dataset. The store prepends the
	// surrogate order column; rows are in upload order.
	CreateTable(ctx context.Context, table string, columns []Column, rows [][]any) error
	DropTable(ctx context.Context, table string) error
	// Schema lists the user-visible columns of a dataset table, excluding
	// the surrogate order column.
	Schema(ctx context.Context, table string) ([]Column, error)
	// DistinctValues samples up to limit distinct non-null values of one
	// column, for value-filter repair probes and catalog generation.
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
	RowCount(ctx context.Context, table string) (int64, error)
}
