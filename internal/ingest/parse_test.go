package ingest

import (
	"strings"
	"testing"
)

func TestParseCSVInfersColumnTypes(t *testing.T) {
	input := "Deal Stage,Amount,Score,Note\n" +
		"Closed Won,1200,0.75,first\n" +
		"On Hold,800,0.5,\n" +
		"New Lead,,1,third\n"

	frame, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}

	wantTypes := map[string]string{
		"Deal Stage": "VARCHAR",
		"Amount":     "BIGINT",
		"Score":      "DOUBLE",
		"Note":       "VARCHAR",
	}
	if len(frame.Columns) != len(wantTypes) {
		t.Fatalf("columns = %#v", frame.Columns)
	}
	for _, col := range frame.Columns {
		if wantTypes[col.Name] != col.Type {
			t.Fatalf("column %s type = %s, want %s", col.Name, col.Type, wantTypes[col.Name])
		}
	}

	if frame.RowCount() != 3 {
		t.Fatalf("RowCount() = %d", frame.RowCount())
	}
	if frame.Rows[0][1] != int64(1200) {
		t.Fatalf("Amount[0] = %#v", frame.Rows[0][1])
	}
	if frame.Rows[1][2] != 0.5 {
		t.Fatalf("Score[1] = %#v", frame.Rows[1][2])
	}
	if frame.Rows[1][3] != nil {
		t.Fatalf("empty cell must become nil, got %#v", frame.Rows[1][3])
	}
	if frame.Rows[2][1] != nil {
		t.Fatalf("empty numeric cell must become nil, got %#v", frame.Rows[2][1])
	}
}

func TestParseCSVRejectsEmptyFile(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestParseJSONArrayOfObjects(t *testing.T) {
	input := `[
		{"name": "alice", "total": 10, "address": {"city": "Graz"}},
		{"name": "bob", "total": 12.5, "active": true}
	]`

	frame, err := ParseJSON(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}

	types := map[string]string{}
	for _, col := range frame.Columns {
		types[col.Name] = col.Type
	}
	if types["name"] != "VARCHAR" {
		t.Fatalf("name type = %s", types["name"])
	}
	if types["total"] != "DOUBLE" {
		t.Fatalf("total type = %s (int and float must widen to DOUBLE)", types["total"])
	}
	if types["address.city"] != "VARCHAR" {
		t.Fatalf("nested key missing: %#v", frame.Columns)
	}
	if types["active"] != "BOOLEAN" {
		t.Fatalf("active type = %s", types["active"])
	}

	if frame.RowCount() != 2 {
		t.Fatalf("RowCount() = %d", frame.RowCount())
	}
	byName := map[string]int{}
	for i, col := range frame.Columns {
		byName[col.Name] = i
	}
	if frame.Rows[0][byName["total"]] != 10.0 {
		t.Fatalf("total[0] = %#v", frame.Rows[0][byName["total"]])
	}
	if frame.Rows[0][byName["active"]] != nil {
		t.Fatalf("absent key must become nil, got %#v", frame.Rows[0][byName["active"]])
	}
	if frame.Rows[1][byName["active"]] != true {
		t.Fatalf("active[1] = %#v", frame.Rows[1][byName["active"]])
	}
}

func TestParseJSONArrayOfPrimitives(t *testing.T) {
	frame, err := ParseJSON(strings.NewReader(`[1, 2, 3]`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if len(frame.Columns) != 1 || frame.Columns[0].Name != "value" || frame.Columns[0].Type != "BIGINT" {
		t.Fatalf("columns = %#v", frame.Columns)
	}
	if frame.RowCount() != 3 || frame.Rows[2][0] != int64(3) {
		t.Fatalf("rows = %#v", frame.Rows)
	}
}

func TestParseJSONSingleObject(t *testing.T) {
	frame, err := ParseJSON(strings.NewReader(`{"name": "alice", "total": 3}`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if frame.RowCount() != 1 {
		t.Fatalf("RowCount() = %d", frame.RowCount())
	}
}

func TestParseJSONRejectsMixedArray(t *testing.T) {
	if _, err := ParseJSON(strings.NewReader(`[{"a": 1}, 2]`)); err == nil {
		t.Fatal("expected error for mixed array")
	}
}

func TestSanitizeIdent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Sales Pipeline.csv", "sales_pipeline_csv"},
		{"user-42", "user_42"},
		{"__weird__", "weird"},
		{"!!!", "x"},
	}
	for _, tc := range cases {
		if got := sanitizeIdent(tc.in); got != tc.want {
			t.Fatalf("sanitizeIdent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildTableName(t *testing.T) {
	name := BuildTableName("alice", "Sales Pipeline.csv")
	if !strings.HasPrefix(name, "alice_") {
		t.Fatalf("table name = %q", name)
	}
	if !strings.HasSuffix(name, "_sales_pipeline_csv") {
		t.Fatalf("table name = %q", name)
	}
	if name == BuildTableName("alice", "Sales Pipeline.csv") {
		t.Fatal("table names must be unique per upload")
	}
}
