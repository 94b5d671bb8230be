package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tabletalk/tabletalk/internal/observability"
)

// statsSummaryColumnLimit caps how many columns the narrative prompt covers.
const statsSummaryColumnLimit = 3

const insightsSystemPrompt = `You are a data analyst. Analyze the statistics you are given and answer the user's question with actionable insight.

Structure the answer in markdown with these sections:

## Key Statistics
Highlight the 3-4 most important metrics.

## Anomalies Detected
List unusual patterns or outliers and their potential impact.

## Trends & Patterns
Identify significant trends and note any correlations.

## Actionable Insights
Give 2-3 specific recommendations based on the data.

## Data Quality Notes
Flag data quality issues to be aware of.

Be concise but insightful.`

// generateInsights asks the oracle for a narrative over the computed report.
// When the oracle is down the formatted statistics themselves become the
// answer, so a stats request never fails on an oracle outage.
func (a *Analyzer) generateInsights(ctx context.Context, question string, report Report) string {
	summary := formatReport(report)
	if a.completer == nil {
		return summary
	}

	user := fmt.Sprintf("User question: %q\n\n%s", question, summary)
	text, err := a.completer.Complete(ctx, insightsSystemPrompt, user)
	if err != nil {
		observability.ObserveOracleFailure()
		a.logger.Warn("insight narrative unavailable, returning raw statistics",
			slog.String("error", err.Error()))
		return summary
	}
	return strings.TrimSpace(text)
}

// formatReport renders the report as markdown. Doubles as the prompt body
// and the deterministic fallback answer.
func formatReport(report Report) string {
	var b strings.Builder

	if len(report.BasicStats) > 0 {
		b.WriteString("### Basic Statistics\n")
		for _, col := range sortedColumns(report.BasicStats, statsSummaryColumnLimit) {
			s := report.BasicStats[col]
			fmt.Fprintf(&b, "\n**%s**\n", col)
			fmt.Fprintf(&b, "- Count: %d\n", s.Count)
			fmt.Fprintf(&b, "- Sum: %.2f\n", s.Sum)
			fmt.Fprintf(&b, "- Mean: %.2f\n", s.Mean)
			fmt.Fprintf(&b, "- Median: %.2f\n", s.Median)
			fmt.Fprintf(&b, "- Range: %.2f to %.2f\n", s.Min, s.Max)
		}
	}

	if len(report.Outliers) > 0 {
		b.WriteString("\n### Outliers\n")
		for i, outlier := range report.Outliers {
			if i == statsSummaryColumnLimit {
				break
			}
			fmt.Fprintf(&b, "\n**%s**: %d outliers (%.2f%% of data)\n",
				outlier.Column, outlier.Count, outlier.Percentage)
			fmt.Fprintf(&b, "- Expected range: %.2f to %.2f\n",
				outlier.LowerBound, outlier.UpperBound)
		}
	}

	if report.TimeTrends != nil {
		b.WriteString("\n### Time-based Trends\n")
		fmt.Fprintf(&b, "- Time column: %s\n", report.TimeTrends.TimeColumn)
		for _, col := range sortedTrendColumns(report.TimeTrends.Trends) {
			fmt.Fprintf(&b, "- %s tracked across %d periods\n", col, len(report.TimeTrends.Trends[col]))
		}
	}

	if len(report.Correlations) > 0 {
		b.WriteString("\n### Strong Correlations\n")
		for i, corr := range report.Correlations {
			if i == statsSummaryColumnLimit {
				break
			}
			fmt.Fprintf(&b, "- %s and %s: %.2f\n", corr.Col1, corr.Col2, corr.Value)
		}
	}

	b.WriteString("\n### Data Quality\n")
	fmt.Fprintf(&b, "- Total rows: %d\n", report.Quality.TotalRows)
	fmt.Fprintf(&b, "- Total columns: %d\n", report.Quality.TotalColumns)
	fmt.Fprintf(&b, "- Missing values: %d (%.2f%%)\n",
		report.Quality.MissingValues, report.Quality.MissingPercent)

	return strings.TrimSpace(b.String())
}

func sortedColumns(stats map[string]ColumnStats, limit int) []string {
	columns := make([]string, 0, len(stats))
	for col := range stats {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	if len(columns) > limit {
		columns = columns[:limit]
	}
	return columns
}

func sortedTrendColumns(trends map[string][]TrendPoint) []string {
	columns := make([]string, 0, len(trends))
	for col := range trends {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
