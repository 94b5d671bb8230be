package sqlexec

import (
	"context"
	"errors"
	"testing"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

func TestValidateTableName(t *testing.T) {
	v := NewValidator(3)
	if err := v.ValidateTableName("alice_a1b2_sales_csv"); err != nil {
		t.Fatalf("ValidateTableName() error = %v", err)
	}
	for _, bad := range []string{"sales; DROP TABLE x", "sales.csv", "a b", ""} {
		if err := v.ValidateTableName(bad); !errors.Is(err, ErrUnsafeQuery) {
			t.Errorf("ValidateTableName(%q) error = %v, want ErrUnsafeQuery", bad, err)
		}
	}
}

func TestValidateSelectAcceptsPlainQuery(t *testing.T) {
	v := NewValidator(3)
	err := v.ValidateSelect(`SELECT COUNT(*) FROM alice_a1b2_sales WHERE "Deal Stage" = 'On Hold'`, "alice_a1b2_sales")
	if err != nil {
		t.Fatalf("ValidateSelect() error = %v", err)
	}
}

func TestValidateSelectRejectsNonSelect(t *testing.T) {
	v := NewValidator(3)
	err := v.ValidateSelect("DROP TABLE alice_a1b2_sales", "alice_a1b2_sales")
	if !errors.Is(err, ErrUnsafeQuery) {
		t.Fatalf("error = %v, want ErrUnsafeQuery", err)
	}
}

func TestValidateSelectRejectsDangerousKeywords(t *testing.T) {
	v := NewValidator(3)
	tests := []string{
		"SELECT * FROM alice_a1b2_sales; DROP TABLE alice_a1b2_sales",
		"SELECT * FROM alice_a1b2_sales WHERE 1=1; DELETE FROM alice_a1b2_sales",
		"SELECT * FROM alice_a1b2_sales UNION SELECT * FROM x; truncate alice_a1b2_sales",
		"SELECT exec('rm') FROM alice_a1b2_sales",
	}
	for _, sqlText := range tests {
		if err := v.ValidateSelect(sqlText, "alice_a1b2_sales"); !errors.Is(err, ErrUnsafeQuery) {
			t.Errorf("ValidateSelect(%q) error = %v, want ErrUnsafeQuery", sqlText, err)
		}
	}
}

func TestValidateSelectAllowsKeywordLookalikeColumns(t *testing.T) {
	v := NewValidator(3)
	// "updated_at" is not the keyword "update".
	err := v.ValidateSelect(`SELECT updated_at FROM alice_a1b2_sales`, "alice_a1b2_sales")
	if err != nil {
		t.Fatalf("ValidateSelect() error = %v", err)
	}
}

func TestValidateSelectRequiresTableReference(t *testing.T) {
	v := NewValidator(3)
	err := v.ValidateSelect("SELECT * FROM other_table", "alice_a1b2_sales")
	if !errors.Is(err, ErrUnsafeQuery) {
		t.Fatalf("error = %v, want ErrUnsafeQuery", err)
	}
}

func TestValidateSelectPartialTableMatch(t *testing.T) {
	v := NewValidator(3)
	// 3 of the last 4 segments (input, file, csv vs input_file_4_csv) appear.
	err := v.ValidateSelect(
		"SELECT * FROM user123_input_file_9_csv",
		"user123_input_file_4_csv",
	)
	if err != nil {
		t.Fatalf("ValidateSelect() partial match error = %v", err)
	}

	// Short names get no partial fallback.
	err = v.ValidateSelect("SELECT * FROM sales_data", "other_name")
	if !errors.Is(err, ErrUnsafeQuery) {
		t.Fatalf("error = %v, want ErrUnsafeQuery", err)
	}
}

func TestValidateUpdate(t *testing.T) {
	v := NewValidator(3)
	if err := v.ValidateUpdate(`UPDATE alice_a1b2_sales SET "Amount" = 0 WHERE "Owner" = 'bob'`, "alice_a1b2_sales"); err != nil {
		t.Fatalf("ValidateUpdate() error = %v", err)
	}

	tests := []string{
		"DELETE FROM alice_a1b2_sales",
		"SELECT * FROM alice_a1b2_sales",
		"UPDATE alice_a1b2_sales SET x = 1; DROP TABLE alice_a1b2_sales",
		"UPDATE other_table SET x = 1",
	}
	for _, sqlText := range tests {
		if err := v.ValidateUpdate(sqlText, "alice_a1b2_sales"); !errors.Is(err, ErrUnsafeQuery) {
			t.Errorf("ValidateUpdate(%q) error = %v, want ErrUnsafeQuery", sqlText, err)
		}
	}
}

func TestNormalizeTableReference(t *testing.T) {
	got := NormalizeTableReference("SELECT * FROM base.alice_a1b2_sales", "alice_a1b2_sales")
	if got != "SELECT * FROM alice_a1b2_sales" {
		t.Fatalf("NormalizeTableReference() = %q", got)
	}
	got = NormalizeTableReference("SELECT * FROM MAIN.alice_a1b2_sales", "alice_a1b2_sales")
	if got != "SELECT * FROM alice_a1b2_sales" {
		t.Fatalf("NormalizeTableReference() = %q", got)
	}
	unchanged := "SELECT * FROM alice_a1b2_sales"
	if got := NormalizeTableReference(unchanged, "alice_a1b2_sales"); got != unchanged {
		t.Fatalf("NormalizeTableReference() = %q", got)
	}
}

type fakeStore struct {
	dataset.Store
	lastSelect string
	lastUpdate string
}

func (f *fakeStore) ExecuteSelect(_ context.Context, sqlText string) (dataset.Result, error) {
	f.lastSelect = sqlText
	return dataset.Result{Columns: []string{"n"}, Rows: []map[string]any{{"n": int64(1)}}}, nil
}

func (f *fakeStore) ExecuteUpdate(_ context.Context, sqlText string) (int64, error) {
	f.lastUpdate = sqlText
	return 2, nil
}

func TestExecutorQueryValidatesBeforeExecuting(t *testing.T) {
	store := &fakeStore{}
	executor := NewExecutor(store, NewValidator(3))

	_, err := executor.Query(context.Background(), "alice_a1b2_sales", "DROP TABLE alice_a1b2_sales")
	if !errors.Is(err, ErrUnsafeQuery) {
		t.Fatalf("error = %v, want ErrUnsafeQuery", err)
	}
	if store.lastSelect != "" {
		t.Fatal("unsafe statement must not reach the store")
	}

	result, err := executor.Query(context.Background(), "alice_a1b2_sales", "SELECT COUNT(*) FROM base.alice_a1b2_sales")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if store.lastSelect != "SELECT COUNT(*) FROM alice_a1b2_sales" {
		t.Fatalf("executed SQL = %q", store.lastSelect)
	}
}

func TestExecutorUpdate(t *testing.T) {
	store := &fakeStore{}
	executor := NewExecutor(store, NewValidator(3))

	affected, err := executor.Update(context.Background(), "alice_a1b2_sales", "UPDATE alice_a1b2_sales SET x = 1")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if affected != 2 {
		t.Fatalf("affected = %d", affected)
	}
}
