package synth

import (
	"strings"
	"testing"
)

const pipelineTable = "alice_a1b2c3d4_sales_pipeline_csv"

func TestRepairTableNameReplacesTruncatedReference(t *testing.T) {
	got, changed := repairTableName("SELECT * FROM c", pipelineTable)
	if !changed {
		t.Fatal("changed = false")
	}
	want := `SELECT * FROM "alice_a1b2c3d4_sales_pipeline_csv"`
	if got != want {
		t.Fatalf("repairTableName() = %q, want %q", got, want)
	}
}

func TestRepairTableNameQuotesBareReference(t *testing.T) {
	got, changed := repairTableName("SELECT COUNT(*) FROM "+pipelineTable, pipelineTable)
	if !changed {
		t.Fatal("changed = false")
	}
	if got != `SELECT COUNT(*) FROM "alice_a1b2c3d4_sales_pipeline_csv"` {
		t.Fatalf("repairTableName() = %q", got)
	}
}

func TestRepairTableNameLeavesQuotedReference(t *testing.T) {
	sqlText := `SELECT * FROM "alice_a1b2c3d4_sales_pipeline_csv" LIMIT 10`
	got, changed := repairTableName(sqlText, pipelineTable)
	if changed || got != sqlText {
		t.Fatalf("repairTableName() = (%q, %v), want unchanged", got, changed)
	}
}

func TestRepairTableNameAddsMissingFromClause(t *testing.T) {
	got, changed := repairTableName("SELECT COUNT(*)", pipelineTable)
	if !changed {
		t.Fatal("changed = false")
	}
	if got != `SELECT COUNT(*) FROM "alice_a1b2c3d4_sales_pipeline_csv"` {
		t.Fatalf("repairTableName() = %q", got)
	}
}

func TestRepairTableNameKeepsPlausibleOtherReference(t *testing.T) {
	sqlText := "SELECT * FROM another_long_reference"
	got, changed := repairTableName(sqlText, pipelineTable)
	if changed || got != sqlText {
		t.Fatalf("repairTableName() = (%q, %v), want unchanged", got, changed)
	}
}

func TestRepairDanglingClauses(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT x FROM t GROUP BY", "SELECT x FROM t"},
		{"SELECT x FROM t ORDER BY", "SELECT x FROM t"},
		{"SELECT x FROM t WHERE", "SELECT x FROM t"},
		{`SELECT x FROM t WHERE ORDER BY "x"`, `SELECT x FROM t ORDER BY "x"`},
		{"SELECT x FROM t WHERE GROUP BY", "SELECT x FROM t"},
		{`SELECT x, COUNT(*) FROM t GROUP BY ORDER BY COUNT(*) DESC`, "SELECT x, COUNT(*) FROM t ORDER BY COUNT(*) DESC"},
		{"SELECT x FROM t WHERE LIMIT 5", "SELECT x FROM t LIMIT 5"},
		{"SELECT x FROM t GROUP BY LIMIT 5", "SELECT x FROM t LIMIT 5"},
		{"SELECT x FROM t ORDER BY LIMIT 5", "SELECT x FROM t LIMIT 5"},
		{`SELECT x, COUNT(*) FROM t ORDER BY GROUP BY "x"`, `SELECT x, COUNT(*) FROM t GROUP BY "x"`},
		{"SELECT x FROM t WHERE ORDER BY LIMIT 3", "SELECT x FROM t LIMIT 3"},
	}
	for _, tt := range tests {
		got, changed := repairDanglingClauses(tt.in)
		if got != tt.want {
			t.Errorf("repairDanglingClauses(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if !changed {
			t.Errorf("repairDanglingClauses(%q) changed = false", tt.in)
		}
	}

	clean := `SELECT x FROM t WHERE "a" = 'b' ORDER BY x`
	if got, changed := repairDanglingClauses(clean); changed || got != clean {
		t.Fatalf("repairDanglingClauses() = (%q, %v), want unchanged", got, changed)
	}
}

func TestTrimOverlongStatementCutsAfterLimit(t *testing.T) {
	sqlText := "SELECT * FROM t LIMIT 5" + strings.Repeat(" trailing explanation", 20)
	got, changed := trimOverlongStatement(sqlText, 100)
	if !changed {
		t.Fatal("changed = false")
	}
	if got != "SELECT * FROM t LIMIT 5" {
		t.Fatalf("trimOverlongStatement() = %q", got)
	}
}

func TestTrimOverlongStatementLeavesShortStatements(t *testing.T) {
	sqlText := "SELECT * FROM t LIMIT 5"
	if got, changed := trimOverlongStatement(sqlText, 2000); changed || got != sqlText {
		t.Fatalf("trimOverlongStatement() = (%q, %v), want unchanged", got, changed)
	}
}

func TestRepairAggregateGroupBy(t *testing.T) {
	got, changed := repairAggregateGroupBy(`SELECT "Source", COUNT(*) FROM t`)
	if !changed {
		t.Fatal("changed = false")
	}
	if got != `SELECT "Source", COUNT(*) FROM t GROUP BY "Source"` {
		t.Fatalf("repairAggregateGroupBy() = %q", got)
	}
}

func TestRepairAggregateGroupByInsertsBeforeOrderBy(t *testing.T) {
	got, changed := repairAggregateGroupBy(`SELECT "Source", COUNT(*) FROM t ORDER BY COUNT(*) DESC`)
	if !changed {
		t.Fatal("changed = false")
	}
	if got != `SELECT "Source", COUNT(*) FROM t GROUP BY "Source" ORDER BY COUNT(*) DESC` {
		t.Fatalf("repairAggregateGroupBy() = %q", got)
	}
}

func TestRepairAggregateGroupBySkipsGroupedStatements(t *testing.T) {
	sqlText := `SELECT "Source", COUNT(*) FROM t GROUP BY "Source"`
	if got, changed := repairAggregateGroupBy(sqlText); changed || got != sqlText {
		t.Fatalf("repairAggregateGroupBy() = (%q, %v), want unchanged", got, changed)
	}
}

func TestRepairRowWindow(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"show last 3 rows", `SELECT * FROM "t" ORDER BY row_seq DESC LIMIT 3`},
		{"show first 5 rows", `SELECT * FROM "t" ORDER BY row_seq ASC LIMIT 5`},
		{"just 2 rows please", `SELECT * FROM "t" ORDER BY row_seq DESC LIMIT 2`},
		{"only 4 rows", `SELECT * FROM "t" ORDER BY row_seq DESC LIMIT 4`},
	}
	for _, tt := range tests {
		got, changed := repairRowWindow(`SELECT * FROM "t"`, tt.question)
		if !changed {
			t.Errorf("repairRowWindow(%q) changed = false", tt.question)
			continue
		}
		if got != tt.want {
			t.Errorf("repairRowWindow(%q) = %q, want %q", tt.question, got, tt.want)
		}
	}
}

func TestRepairRowWindowSkipsShapedStatements(t *testing.T) {
	tests := []string{
		`SELECT * FROM "t" WHERE "a" = 'b'`,
		`SELECT * FROM "t" LIMIT 3`,
		`SELECT * FROM "t" ORDER BY row_seq DESC LIMIT 3`,
		`SELECT "a" FROM "t"`,
	}
	for _, sqlText := range tests {
		if got, changed := repairRowWindow(sqlText, "show last 3 rows"); changed || got != sqlText {
			t.Errorf("repairRowWindow(%q) = (%q, %v), want unchanged", sqlText, got, changed)
		}
	}
}

func TestRepairRowWindowIgnoresUnrelatedQuestions(t *testing.T) {
	sqlText := `SELECT * FROM "t"`
	if got, changed := repairRowWindow(sqlText, "show me everything"); changed || got != sqlText {
		t.Fatalf("repairRowWindow() = (%q, %v), want unchanged", got, changed)
	}
}
