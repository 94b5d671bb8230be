package synth

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	howManyValuePattern = regexp.MustCompile(`how many (.+?)\s+(?:is|are)\s+(.+)`)
	countOfPattern      = regexp.MustCompile(`(?:count|give the count)\s+of\s+(.+)`)
	countValuePattern   = regexp.MustCompile(`count\s+(.+)`)
	genericCountTarget  = regexp.MustCompile(`\b(rows?|records?|entries|all|everything|there|data)\b`)

	whereInsertPoints = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\s+ORDER\s+BY\b`),
		regexp.MustCompile(`(?i)\s+GROUP\s+BY\b`),
		regexp.MustCompile(`(?i)\s+LIMIT\b`),
	}
)

// valueCorrections maps common mis-hearings of pipeline stage values to the
// stored spelling. Ordered: longer phrases must win over their prefixes.
var valueCorrections = []struct {
	typo      string
	canonical string
}{
	{"closest won", "Closed Won"},
	{"closest", "Closed"},
	{"on hold", "On Hold"},
	{"closed won", "Closed Won"},
	{"closed lost", "Closed Lost"},
	{"new lead", "New Lead"},
	{"contacted", "Contacted"},
	{"qualified", "Qualified"},
	{"negotiation", "Negotiation"},
	{"proposal sent", "Proposal Sent"},
	{"re-engagement", "Re-engagement"},
	{"disqualified", "Disqualified"},
}

// statusColumnKeywords pick the columns a value filter most likely targets.
var statusColumnKeywords = []string{"stage", "status", "state", "deal"}

// repairMissingFilter catches the worst synthesis failure: the user asked for
// a filtered count ("how many deal stage is on hold") and the oracle produced
// a bare COUNT(*). It recovers the column and value by probing the dataset,
// bounded by the probe budget, and injects the missing WHERE clause.
func (s *Synthesizer) repairMissingFilter(ctx context.Context, sqlText, question, table string) (string, bool) {
	if s.store == nil || table == "" || s.cfg.FilterProbeLimit == 0 {
		return sqlText, false
	}
	upper := strings.ToUpper(sqlText)
	if !strings.Contains(upper, "COUNT(*)") || strings.Contains(upper, "WHERE") {
		return sqlText, false
	}

	columnMention, valueMention, ok := parseFilteredCount(strings.ToLower(question))
	if !ok {
		return sqlText, false
	}
	corrected := correctValue(valueMention)

	schema, err := s.store.Schema(ctx, table)
	if err != nil {
		s.logger.Warn("value-filter repair skipped, schema unavailable",
			slog.String("table", table), slog.String("error", err.Error()))
		return sqlText, false
	}

	var columns []string
	for _, col := range schema {
		columns = append(columns, col.Name)
	}
	likely := likelyFilterColumns(columns, columnMention)

	budget := s.cfg.FilterProbeLimit
	column := ""
	for _, col := range likely {
		if budget <= 0 {
			break
		}
		budget--
		found, canonical, err := s.probeColumnValue(ctx, table, col, corrected)
		if err != nil {
			continue
		}
		if found {
			column = col
			if canonical != "" {
				corrected = canonical
			}
			break
		}
	}

	// Nothing in the likely columns: scan distinct samples of the rest.
	if column == "" {
		targetWords := significantWords(valueMention)
		for _, col := range columns {
			if budget <= 0 || contains(likely, col) {
				continue
			}
			budget--
			values, err := s.store.DistinctValues(ctx, table, col, s.cfg.DistinctSampleLimit)
			if err != nil {
				continue
			}
			if match := fuzzyValueMatch(values, corrected, targetWords); match != "" {
				column = col
				corrected = match
				break
			}
		}
	}

	if column == "" || corrected == "" {
		return sqlText, false
	}
	return injectWhere(sqlText, column, corrected), true
}

// parseFilteredCount recognizes the question shapes that must carry a WHERE
// clause: "how many X is Y", "count of Y", and "count Y" for a specific Y.
func parseFilteredCount(lowerQuestion string) (columnMention, valueMention string, ok bool) {
	if m := howManyValuePattern.FindStringSubmatch(lowerQuestion); m != nil {
		column, value := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		// "how many rows are there" is a plain count, not a filter.
		if !genericCountTarget.MatchString(column) && !genericCountTarget.MatchString(value) {
			return column, value, true
		}
		return "", "", false
	}
	if m := countOfPattern.FindStringSubmatch(lowerQuestion); m != nil {
		value := strings.TrimSpace(m[1])
		if !genericCountTarget.MatchString(value) {
			return "", value, true
		}
		return "", "", false
	}
	if m := countValuePattern.FindStringSubmatch(lowerQuestion); m != nil {
		value := strings.TrimSpace(m[1])
		if value != "" && len(value) < 50 && !genericCountTarget.MatchString(value) {
			return "", value, true
		}
	}
	return "", "", false
}

func correctValue(value string) string {
	lower := strings.ToLower(strings.TrimSpace(value))
	if lower == "" {
		return ""
	}
	for _, c := range valueCorrections {
		if strings.Contains(lower, c.typo) || strings.Contains(c.typo, lower) {
			return c.canonical
		}
	}
	switch {
	case strings.Contains(lower, "won"):
		return "Closed Won"
	case strings.Contains(lower, "hold"):
		return "On Hold"
	case strings.Contains(lower, "lost"):
		return "Closed Lost"
	}
	return titleCase(lower)
}

// likelyFilterColumns orders candidate columns: mention matches first, then
// status-like names.
func likelyFilterColumns(columns []string, columnMention string) []string {
	var likely []string
	for _, col := range columns {
		lower := strings.ToLower(col)
		for _, keyword := range statusColumnKeywords {
			if strings.Contains(lower, keyword) {
				likely = append(likely, col)
				break
			}
		}
	}
	if columnMention != "" {
		mention := strings.ToLower(columnMention)
		for _, col := range columns {
			lower := strings.ToLower(col)
			if !strings.Contains(lower, mention) && !strings.Contains(mention, lower) {
				continue
			}
			if contains(likely, col) {
				likely = moveToFront(likely, col)
			} else {
				likely = append([]string{col}, likely...)
			}
		}
	}
	return likely
}

// probeColumnValue checks whether the column holds the value, matching
// case-insensitively, and returns the stored spelling when it differs.
func (s *Synthesizer) probeColumnValue(ctx context.Context, table, column, value string) (bool, string, error) {
	probe := fmt.Sprintf(
		`SELECT COUNT(*) AS cnt FROM %s WHERE lower(%s) = lower('%s') LIMIT 1`,
		quoteIdent(table), quoteIdent(column), escapeLiteral(value),
	)
	result, err := s.store.ExecuteSelect(ctx, probe)
	if err != nil {
		return false, "", err
	}
	if len(result.Rows) == 0 || asInt64(result.Rows[0]["cnt"]) == 0 {
		return false, "", nil
	}

	canonical := fmt.Sprintf(
		`SELECT DISTINCT %s AS val FROM %s WHERE lower(%s) = lower('%s') LIMIT 1`,
		quoteIdent(column), quoteIdent(table), quoteIdent(column), escapeLiteral(value),
	)
	if result, err := s.store.ExecuteSelect(ctx, canonical); err == nil && len(result.Rows) > 0 {
		if stored, ok := result.Rows[0]["val"].(string); ok && stored != "" {
			return true, stored, nil
		}
	}
	return true, "", nil
}

func fuzzyValueMatch(values []string, target string, targetWords []string) string {
	targetLower := strings.ToLower(target)
	for _, value := range values {
		valueLower := strings.ToLower(value)
		if strings.Contains(valueLower, targetLower) || strings.Contains(targetLower, valueLower) {
			return value
		}
		for _, word := range targetWords {
			if strings.Contains(valueLower, word) {
				return value
			}
		}
	}
	return ""
}

func injectWhere(sqlText, column, value string) string {
	clause := fmt.Sprintf(` WHERE %s = '%s'`, quoteIdent(column), escapeLiteral(value))
	insertAt := len(sqlText)
	for _, pattern := range whereInsertPoints {
		if loc := pattern.FindStringIndex(sqlText); loc != nil && loc[0] < insertAt {
			insertAt = loc[0]
		}
	}
	return sqlText[:insertAt] + clause + sqlText[insertAt:]
}

func significantWords(value string) []string {
	var words []string
	for _, word := range strings.Fields(strings.ToLower(value)) {
		if len(word) > 2 {
			words = append(words, word)
		}
	}
	return words
}

func titleCase(lower string) string {
	words := strings.Fields(lower)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeLiteral(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

func asInt64(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
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

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

func moveToFront(list []string, target string) []string {
	for i, item := range list {
		if item == target && i > 0 {
			copy(list[1:i+1], list[:i])
			list[0] = target
			break
		}
	}
	return list
}
