// Package stats computes statistical profiles of a dataset and turns them
// into a narrative answer. All aggregation is pushed down into the dataset
// store as SQL; rows never stream through this package.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/oracle"
)

// trendNumericLimit caps how many numeric columns the time-trend pass
// aggregates; wide tables would otherwise fan out into dozens of queries.
const trendNumericLimit = 3

// correlationThreshold is the absolute value above which a pairwise
// correlation is reported.
const correlationThreshold = 0.7

const outlierExampleLimit = 5

var timeColumnKeywords = []string{"date", "time", "period", "day", "month", "year"}

type ColumnStats struct {
	Count  int64   `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Stddev float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type Distribution struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type Outlier struct {
	Column     string           `json:"column"`
	Count      int64            `json:"count"`
	Percentage float64          `json:"percentage"`
	LowerBound float64          `json:"lower_bound"`
	UpperBound float64          `json:"upper_bound"`
	Examples   []map[string]any `json:"examples"`
}

type TrendPoint struct {
	Period string  `json:"period"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Count  int64   `json:"count"`
}

type TimeTrends struct {
	TimeColumn string                  `json:"time_column"`
	Trends     map[string][]TrendPoint `json:"trends"`
}

type Correlation struct {
	Col1  string  `json:"col1"`
	Col2  string  `json:"col2"`
	Value float64 `json:"correlation"`
}

type Quality struct {
	TotalRows        int64            `json:"total_rows"`
	TotalColumns     int              `json:"total_columns"`
	MissingValues    int64            `json:"missing_values"`
	MissingPercent   float64          `json:"missing_percentage"`
	ColumnsWithNulls map[string]int64 `json:"columns_with_nulls"`
}

// Report is one full analysis of a dataset. Insights is the narrative;
// everything else is the raw material it was built from.
type Report struct {
	Insights     string                  `json:"insights_text"`
	BasicStats   map[string]ColumnStats  `json:"basic_stats"`
	Distribution map[string]Distribution `json:"distribution"`
	Outliers     []Outlier               `json:"outliers"`
	TimeTrends   *TimeTrends             `json:"time_trends,omitempty"`
	Correlations []Correlation           `json:"correlations"`
	Quality      Quality                 `json:"data_quality"`
	RowCount     int64                   `json:"row_count"`
}

type Analyzer struct {
	store     dataset.Store
	completer oracle.Completer
	logger    *slog.Logger
}

func NewAnalyzer(store dataset.Store, completer oracle.Completer, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{store: store, completer: completer, logger: logger}
}

// Analyze profiles the table and produces a Report. Per-column aggregation
// failures are logged and skipped; only a missing table or schema fails the
// whole analysis.
func (a *Analyzer) Analyze(ctx context.Context, table, question string) (Report, error) {
	schema, err := a.store.Schema(ctx, table)
	if err != nil {
		return Report{}, fmt.Errorf("stats: schema for %q: %w", table, err)
	}
	rowCount, err := a.store.RowCount(ctx, table)
	if err != nil {
		return Report{}, fmt.Errorf("stats: row count for %q: %w", table, err)
	}

	numeric := numericColumns(schema)

	report := Report{
		BasicStats:   make(map[string]ColumnStats, len(numeric)),
		Distribution: make(map[string]Distribution, len(numeric)),
		RowCount:     rowCount,
	}

	for _, col := range numeric {
		profile, dist, err := a.profileColumn(ctx, table, col)
		if err != nil {
			a.logger.Warn("column profile failed",
				slog.String("table", table),
				slog.String("column", col),
				slog.String("error", err.Error()))
			continue
		}
		report.BasicStats[col] = profile
		report.Distribution[col] = dist

		if outlier, found := a.detectOutliers(ctx, table, col, dist, rowCount); found {
			report.Outliers = append(report.Outliers, outlier)
		}
	}

	report.TimeTrends = a.analyzeTimeTrends(ctx, table, schema, numeric)
	report.Correlations = a.correlations(ctx, table, numeric)
	report.Quality = a.assessQuality(ctx, table, schema, rowCount)
	report.Insights = a.generateInsights(ctx, question, report)

	return report, nil
}

func (a *Analyzer) profileColumn(ctx context.Context, table, column string) (ColumnStats, Distribution, error) {
	// Aggregate over DOUBLE: SUM on integer columns would otherwise widen to
	// HUGEINT, which does not scan cleanly.
	c := fmt.Sprintf("CAST(%s AS DOUBLE)", quoteIdent(column))
	query := fmt.Sprintf(
		`SELECT COUNT(%[1]s) AS cnt,
			COALESCE(SUM(%[1]s), 0) AS total,
			COALESCE(AVG(%[1]s), 0) AS mean,
			COALESCE(MEDIAN(%[1]s), 0) AS med,
			COALESCE(STDDEV(%[1]s), 0) AS sd,
			COALESCE(MIN(%[1]s), 0) AS minv,
			COALESCE(MAX(%[1]s), 0) AS maxv,
			COALESCE(quantile_cont(%[1]s, 0.25), 0) AS p25,
			COALESCE(quantile_cont(%[1]s, 0.50), 0) AS p50,
			COALESCE(quantile_cont(%[1]s, 0.75), 0) AS p75,
			COALESCE(quantile_cont(%[1]s, 0.90), 0) AS p90,
			COALESCE(quantile_cont(%[1]s, 0.95), 0) AS p95,
			COALESCE(quantile_cont(%[1]s, 0.99), 0) AS p99
		FROM %[2]s`, c, quoteIdent(table))

	result, err := a.store.ExecuteSelect(ctx, query)
	if err != nil {
		return ColumnStats{}, Distribution{}, err
	}
	if len(result.Rows) == 0 {
		return ColumnStats{}, Distribution{}, fmt.Errorf("empty profile result")
	}
	row := result.Rows[0]
	stats := ColumnStats{
		Count:  asInt64(row["cnt"]),
		Sum:    asFloat64(row["total"]),
		Mean:   asFloat64(row["mean"]),
		Median: asFloat64(row["med"]),
		Stddev: asFloat64(row["sd"]),
		Min:    asFloat64(row["minv"]),
		Max:    asFloat64(row["maxv"]),
	}
	dist := Distribution{
		P25: asFloat64(row["p25"]),
		P50: asFloat64(row["p50"]),
		P75: asFloat64(row["p75"]),
		P90: asFloat64(row["p90"]),
		P95: asFloat64(row["p95"]),
		P99: asFloat64(row["p99"]),
	}
	return stats, dist, nil
}

// detectOutliers applies the IQR rule: anything beyond 1.5 interquartile
// ranges from the quartiles is an outlier. Columns with zero IQR are skipped.
func (a *Analyzer) detectOutliers(ctx context.Context, table, column string, dist Distribution, rowCount int64) (Outlier, bool) {
	iqr := dist.P75 - dist.P25
	if iqr == 0 || rowCount == 0 {
		return Outlier{}, false
	}
	lower := dist.P25 - 1.5*iqr
	upper := dist.P75 + 1.5*iqr

	c := quoteIdent(column)
	countQuery := fmt.Sprintf(
		`SELECT COUNT(*) AS cnt FROM %s WHERE %s < %s OR %s > %s`,
		quoteIdent(table), c, formatFloat(lower), c, formatFloat(upper))
	result, err := a.store.ExecuteSelect(ctx, countQuery)
	if err != nil || len(result.Rows) == 0 {
		return Outlier{}, false
	}
	count := asInt64(result.Rows[0]["cnt"])
	if count == 0 {
		return Outlier{}, false
	}

	exampleQuery := fmt.Sprintf(
		`SELECT * FROM %s WHERE %s < %s OR %s > %s ORDER BY %s DESC LIMIT %d`,
		quoteIdent(table), c, formatFloat(lower), c, formatFloat(upper), c, outlierExampleLimit)
	examples, err := a.store.ExecuteSelect(ctx, exampleQuery)
	if err != nil {
		examples = dataset.Result{}
	}

	return Outlier{
		Column:     column,
		Count:      count,
		Percentage: round2(float64(count) / float64(rowCount) * 100),
		LowerBound: lower,
		UpperBound: upper,
		Examples:   examples.Rows,
	}, true
}

// analyzeTimeTrends groups the leading numeric columns over the first
// date-like column, when one exists.
func (a *Analyzer) analyzeTimeTrends(ctx context.Context, table string, schema []dataset.Column, numeric []string) *TimeTrends {
	timeColumn := ""
	for _, col := range schema {
		lower := strings.ToLower(col.Name)
		for _, keyword := range timeColumnKeywords {
			if strings.Contains(lower, keyword) {
				timeColumn = col.Name
				break
			}
		}
		if timeColumn != "" {
			break
		}
	}
	if timeColumn == "" || len(numeric) == 0 {
		return nil
	}

	limit := len(numeric)
	if limit > trendNumericLimit {
		limit = trendNumericLimit
	}

	trends := make(map[string][]TrendPoint, limit)
	t := quoteIdent(timeColumn)
	for _, col := range numeric[:limit] {
		if col == timeColumn {
			continue
		}
		c := fmt.Sprintf("CAST(%s AS DOUBLE)", quoteIdent(col))
		query := fmt.Sprintf(
			`SELECT CAST(%[1]s AS VARCHAR) AS period,
				COALESCE(SUM(%[2]s), 0) AS total,
				COALESCE(AVG(%[2]s), 0) AS mean,
				COUNT(%[2]s) AS cnt
			FROM %[3]s GROUP BY %[1]s ORDER BY %[1]s`, t, c, quoteIdent(table))
		result, err := a.store.ExecuteSelect(ctx, query)
		if err != nil {
			a.logger.Warn("time trend query failed",
				slog.String("column", col), slog.String("error", err.Error()))
			continue
		}
		points := make([]TrendPoint, 0, len(result.Rows))
		for _, row := range result.Rows {
			points = append(points, TrendPoint{
				Period: fmt.Sprint(row["period"]),
				Sum:    asFloat64(row["total"]),
				Mean:   asFloat64(row["mean"]),
				Count:  asInt64(row["cnt"]),
			})
		}
		trends[col] = points
	}
	if len(trends) == 0 {
		return nil
	}
	return &TimeTrends{TimeColumn: timeColumn, Trends: trends}
}

func (a *Analyzer) correlations(ctx context.Context, table string, numeric []string) []Correlation {
	if len(numeric) < 2 {
		return nil
	}
	var strong []Correlation
	for i := 0; i < len(numeric); i++ {
		for j := i + 1; j < len(numeric); j++ {
			query := fmt.Sprintf(`SELECT corr(%s, %s) AS r FROM %s`,
				quoteIdent(numeric[i]), quoteIdent(numeric[j]), quoteIdent(table))
			result, err := a.store.ExecuteSelect(ctx, query)
			if err != nil || len(result.Rows) == 0 {
				continue
			}
			value := asFloat64(result.Rows[0]["r"])
			if math.IsNaN(value) || math.Abs(value) <= correlationThreshold {
				continue
			}
			strong = append(strong, Correlation{Col1: numeric[i], Col2: numeric[j], Value: value})
		}
	}
	return strong
}

func (a *Analyzer) assessQuality(ctx context.Context, table string, schema []dataset.Column, rowCount int64) Quality {
	quality := Quality{
		TotalRows:        rowCount,
		TotalColumns:     len(schema),
		ColumnsWithNulls: map[string]int64{},
	}
	if len(schema) == 0 {
		return quality
	}

	selects := make([]string, 0, len(schema))
	for i, col := range schema {
		selects = append(selects, fmt.Sprintf(`COUNT(*) - COUNT(%s) AS c%d`, quoteIdent(col.Name), i))
	}
	query := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(selects, ", "), quoteIdent(table))
	result, err := a.store.ExecuteSelect(ctx, query)
	if err != nil || len(result.Rows) == 0 {
		return quality
	}
	row := result.Rows[0]
	var missing int64
	for i, col := range schema {
		nulls := asInt64(row[fmt.Sprintf("c%d", i)])
		missing += nulls
		if nulls > 0 {
			quality.ColumnsWithNulls[col.Name] = nulls
		}
	}
	quality.MissingValues = missing
	totalCells := rowCount * int64(len(schema))
	if totalCells > 0 {
		quality.MissingPercent = round2(float64(missing) / float64(totalCells) * 100)
	}
	return quality
}

func numericColumns(schema []dataset.Column) []string {
	var numeric []string
	for _, col := range schema {
		upper := strings.ToUpper(col.Type)
		for _, marker := range []string{"INT", "DOUBLE", "FLOAT", "DECIMAL", "REAL", "NUMERIC"} {
			if strings.Contains(upper, marker) {
				numeric = append(numeric, col.Name)
				break
			}
		}
	}
	return numeric
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func asInt64(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case int32:
		return int64(typed)
	case float64:
		return int64(typed)
	case string:
		n, _ := strconv.ParseInt(typed, 10, 64)
		return n
	default:
		return 0
	}
}

func asFloat64(value any) float64 {
	switch typed := value.(type) {
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int64:
		return float64(typed)
	case int:
		return float64(typed)
	case int32:
		return float64(typed)
	case string:
		f, _ := strconv.ParseFloat(typed, 64)
		return f
	default:
		return 0
	}
}
