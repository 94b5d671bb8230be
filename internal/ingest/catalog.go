package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tabletalk/tabletalk/internal/observability"
)

const (
	sampleRowLimit        = 20
	categoricalValueLimit = 20
	shownValueLimit       = 15
)

const catalogSystemPrompt = `You are a data cataloging assistant. You will be given the schema and sample rows of an uploaded tabular file.

Generate a concise catalog summary (250-400 words) in markdown format including:
1. Column list with inferred types - LIST ALL COLUMN NAMES EXACTLY AS THEY APPEAR (case-sensitive, with spaces if any)
2. For each categorical column, list the DISTINCT VALUES that appear in the data (this is critical for filtering queries)
   - Example: "Deal Stage: On Hold, Closed Won, New Lead, Contacted, Qualified"
   - This helps answer questions like "count of On Hold" - the reader needs to know which column contains "On Hold"
3. Basic statistics (numeric: min/max; categorical: cardinality)
4. Time columns and grain (if any)
5. Potential join keys or ID columns
6. Quality notes (duplicates, missingness, anomalies)

Format as markdown. Be factual and concise.`

// buildCatalogPrompt renders the schema, the distinct values of
// low-cardinality text columns, and a handful of sample rows for the oracle
// to summarize.
func buildCatalogPrompt(frame Frame) string {
	var b strings.Builder

	b.WriteString("Schema:\n")
	for _, col := range frame.Columns {
		fmt.Fprintf(&b, "- %s: %s\n", col.Name, col.Type)
	}

	categorical := categoricalValues(frame)
	if len(categorical) > 0 {
		b.WriteString("\nDistinct Values in Categorical Columns:\n")
		for _, col := range frame.Columns {
			values, ok := categorical[col.Name]
			if !ok {
				continue
			}
			shown := values
			suffix := ""
			if len(shown) > shownValueLimit {
				suffix = fmt.Sprintf(", ... (and %d more)", len(shown)-shownValueLimit)
				shown = shown[:shownValueLimit]
			}
			fmt.Fprintf(&b, "- %s: %s%s\n", col.Name, strings.Join(shown, ", "), suffix)
		}
	}

	sampleCount := len(frame.Rows)
	if sampleCount > sampleRowLimit {
		sampleCount = sampleRowLimit
	}
	fmt.Fprintf(&b, "\nSample Rows (showing %d of %d total rows):\n", sampleCount, len(frame.Rows))
	for _, row := range frame.Rows[:sampleCount] {
		parts := make([]string, 0, len(frame.Columns))
		for ci, col := range frame.Columns {
			var value any
			if ci < len(row) {
				value = row[ci]
			}
			parts = append(parts, fmt.Sprintf("%s: %v", col.Name, value))
		}
		fmt.Fprintf(&b, "{%s}\n", strings.Join(parts, ", "))
	}

	fmt.Fprintf(&b, "\nTotal Rows: %d\n", len(frame.Rows))
	return b.String()
}

// generateSummary asks the oracle for a catalog narrative and falls back to
// a deterministic rendering of the schema, so an upload never fails on an
// oracle outage.
func (s *Service) generateSummary(ctx context.Context, displayName string, frame Frame) string {
	if s.completer != nil {
		summary, err := s.completer.Complete(ctx, catalogSystemPrompt, buildCatalogPrompt(frame))
		if err == nil && strings.TrimSpace(summary) != "" {
			return strings.TrimSpace(summary)
		}
		if err != nil {
			observability.ObserveOracleFailure()
			s.logger.Warn("catalog generation fell back to schema summary", "file", displayName, "error", err)
		}
	}
	return fallbackSummary(displayName, frame)
}

func fallbackSummary(displayName string, frame Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", displayName)
	fmt.Fprintf(&b, "%d rows, %d columns.\n\n### Columns\n", len(frame.Rows), len(frame.Columns))

	categorical := categoricalValues(frame)
	for _, col := range frame.Columns {
		if values, ok := categorical[col.Name]; ok {
			fmt.Fprintf(&b, "- %s (%s): %s\n", col.Name, col.Type, strings.Join(values, ", "))
			continue
		}
		fmt.Fprintf(&b, "- %s (%s)\n", col.Name, col.Type)
	}
	return b.String()
}

// categoricalValues collects the sorted distinct values of every text column
// with at most categoricalValueLimit distinct non-null values.
func categoricalValues(frame Frame) map[string][]string {
	result := make(map[string][]string)
	for ci, col := range frame.Columns {
		if col.Type != "VARCHAR" {
			continue
		}
		seen := map[string]bool{}
		lowCardinality := true
		for _, row := range frame.Rows {
			if ci >= len(row) || row[ci] == nil {
				continue
			}
			value, ok := row[ci].(string)
			if !ok {
				value = fmt.Sprintf("%v", row[ci])
			}
			seen[value] = true
			if len(seen) > categoricalValueLimit {
				lowCardinality = false
				break
			}
		}
		if !lowCardinality || len(seen) == 0 {
			continue
		}
		values := make([]string, 0, len(seen))
		for value := range seen {
			values = append(values, value)
		}
		sort.Strings(values)
		result[col.Name] = values
	}
	return result
}
