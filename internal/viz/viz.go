// Package viz picks the presentation for a query result. Selection is
// first-match: explicit user phrasing wins, then the shape of the result
// decides.
package viz

import (
	"fmt"
	"regexp"
	"strings"
)

type Type string

const (
	TypeTable    Type = "table"
	TypeKPI      Type = "kpi"
	TypeLine     Type = "line_chart"
	TypeBar      Type = "bar_chart"
	TypeInsights Type = "insights"
)

// Config describes how the client should render a result. Data is either the
// raw rows (tables), a single {"value": v} entry (KPI), or label/value pairs
// (charts).
type Config struct {
	Type         Type             `json:"type"`
	ShowBarChart bool             `json:"show_bar_chart"`
	Data         []map[string]any `json:"input_data,omitempty"`
}

const maxChartRows = 20

var (
	tablePhrases = compilePhrases("table", "row and column", "rows and columns", "list", "show as table", "as table", "in table format")
	linePhrases  = compilePhrases("line chart", "line graph", "linechart", "linegraph", "line")
	barPhrases   = compilePhrases("bar chart", "bar graph", "barchart", "bargraph", "bars")

	dateNameKeywords = []string{"date", "time", "day", "month", "year", "period"}
)

// compilePhrases anchors each phrase on word boundaries: "line" must not fire
// inside "online", nor "list" inside "listing".
func compilePhrases(phrases ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(phrases))
	for i, phrase := range phrases {
		compiled[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
	}
	return compiled
}

func matchesAny(text string, phrases []*regexp.Regexp) bool {
	for _, phrase := range phrases {
		if phrase.MatchString(text) {
			return true
		}
	}
	return false
}

// Select chooses a presentation for rows/columns, honoring explicit chart
// phrasing in the utterance. Returns ok=false for empty results.
func Select(rows []map[string]any, columns []string, utterance string) (Config, bool) {
	if len(rows) == 0 {
		return Config{}, false
	}

	lower := strings.ToLower(utterance)
	wantsTable := matchesAny(lower, tablePhrases)
	wantsLine := matchesAny(lower, linePhrases)
	wantsBar := matchesAny(lower, barPhrases)

	// Single cell is a KPI unless the user insisted on a table.
	if len(rows) == 1 && len(columns) == 1 {
		if wantsTable {
			return Config{Type: TypeTable, Data: rows}, true
		}
		return Config{Type: TypeKPI, Data: []map[string]any{{"value": rows[0][columns[0]]}}}, true
	}

	if wantsTable {
		return Config{Type: TypeTable, Data: rows}, true
	}

	// Two columns where one is date-like reads as a time series, unless the
	// user explicitly asked for bars.
	if len(columns) == 2 && len(rows) > 1 && hasDateColumn(columns) && !wantsBar {
		return Config{Type: TypeLine, Data: rows}, true
	}

	// Two-column categorical data charts well; large results fall through to
	// a table.
	if len(columns) == 2 && len(rows) > 1 && len(rows) <= maxChartRows {
		formatted := labelValueRows(rows, columns)
		if wantsLine {
			return Config{Type: TypeLine, Data: formatted}, true
		}
		return Config{Type: TypeBar, ShowBarChart: true, Data: formatted}, true
	}

	return Config{Type: TypeTable, Data: rows}, true
}

// HasDateColumn reports whether any column name looks date-like. The check is
// name-based only; values are never inspected.
func HasDateColumn(columns []string) bool {
	return hasDateColumn(columns)
}

func hasDateColumn(columns []string) bool {
	for _, column := range columns {
		lower := strings.ToLower(column)
		for _, keyword := range dateNameKeywords {
			if strings.Contains(lower, keyword) {
				return true
			}
		}
	}
	return false
}

func labelValueRows(rows []map[string]any, columns []string) []map[string]any {
	formatted := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, map[string]any{
			"label": stringify(row[columns[0]]),
			"value": row[columns[1]],
		})
	}
	return formatted
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	default:
		return fmt.Sprint(typed)
	}
}
