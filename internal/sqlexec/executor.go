package sqlexec

import (
	"context"
	"fmt"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

// Executor is the validating facade in front of the dataset store. Nothing
// in the engine runs SQL against a dataset without going through it.
type Executor struct {
	store     dataset.Store
	validator *Validator
}

func NewExecutor(store dataset.Store, validator *Validator) *Executor {
	return &Executor{store: store, validator: validator}
}

func (e *Executor) Validator() *Validator {
	return e.validator
}

// Query normalizes, validates, and executes a SELECT against one dataset.
func (e *Executor) Query(ctx context.Context, table, sqlText string) (dataset.Result, error) {
	sqlText = NormalizeTableReference(sqlText, table)
	if err := e.validator.ValidateSelect(sqlText, table); err != nil {
		return dataset.Result{}, err
	}
	result, err := e.store.ExecuteSelect(ctx, sqlText)
	if err != nil {
		return dataset.Result{}, fmt.Errorf("query dataset %q: %w", table, err)
	}
	return result, nil
}

// Update normalizes, validates, and executes an UPDATE against one dataset,
// returning the number of affected rows.
func (e *Executor) Update(ctx context.Context, table, sqlText string) (int64, error) {
	sqlText = NormalizeTableReference(sqlText, table)
	if err := e.validator.ValidateUpdate(sqlText, table); err != nil {
		return 0, err
	}
	affected, err := e.store.ExecuteUpdate(ctx, sqlText)
	if err != nil {
		return 0, fmt.Errorf("update dataset %q: %w", table, err)
	}
	return affected, nil
}
