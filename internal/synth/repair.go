package synth

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tabletalk/tabletalk/internal/dataset"
)

var (
	fromRefPattern = regexp.MustCompile(`(?i)\bFROM\s+("([^"]+)"|'([^']+)'|([A-Za-z0-9_]+))`)
	fromPattern    = regexp.MustCompile(`(?i)\bFROM\b`)

	trailingGroupBy = regexp.MustCompile(`(?i)\s+GROUP\s+BY\s*$`)
	trailingOrderBy = regexp.MustCompile(`(?i)\s+ORDER\s+BY\s*$`)
	trailingWhere   = regexp.MustCompile(`(?i)\s+WHERE\s*$`)
	emptyGroupBy    = regexp.MustCompile(`(?i)\s+GROUP\s+BY\s+(ORDER\s+BY|LIMIT\s)`)
	emptyOrderBy    = regexp.MustCompile(`(?i)\s+ORDER\s+BY\s+(GROUP\s+BY|LIMIT\s)`)
	emptyWhere      = regexp.MustCompile(`(?i)\s+WHERE\s+(ORDER\s+BY|GROUP\s+BY|LIMIT\s)`)

	limitClausePattern = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	groupByPattern     = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	orderByPattern     = regexp.MustCompile(`(?i)\s+ORDER\s+BY\b`)
	countStarPattern   = regexp.MustCompile(`(?i)COUNT\(\s*\*\s*\)`)
	selectColAndCount  = regexp.MustCompile(`(?i)SELECT\s+"([^"]+)"\s*,\s*COUNT\(\s*\*\s*\)`)
	simpleSelectAll    = regexp.MustCompile(`(?i)^SELECT\s+\*\s+FROM\s+`)

	lastRowsPattern  = regexp.MustCompile(`last\s+(\d+)\s+rows?`)
	firstRowsPattern = regexp.MustCompile(`first\s+(\d+)\s+rows?`)
	justRowsPattern  = regexp.MustCompile(`(?:just|only)\s+(\d+)\s+rows?`)
)

// repairTableName makes sure the statement references the expected table in
// full. Long generated names come back truncated or unquoted often enough
// that this runs on every statement.
func repairTableName(sqlText, table string) (string, bool) {
	if table == "" {
		return sqlText, false
	}
	if !fromPattern.MatchString(sqlText) {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "SELECT") {
			return sqlText + ` FROM ` + quoteTable(table), true
		}
		return sqlText, false
	}

	match := fromRefPattern.FindStringSubmatchIndex(sqlText)
	if match == nil {
		return sqlText, false
	}
	current := currentTableRef(sqlText, match)
	if current == "" {
		return sqlText, false
	}

	if strings.EqualFold(current, table) {
		// Right table; fix quoting and casing if the reference is bare.
		wasQuoted := sqlText[match[2]] == '"' || sqlText[match[2]] == '\''
		if !wasQuoted && (current != table || needsQuotes(table)) {
			return spliceFromRef(sqlText, match, table), true
		}
		if wasQuoted && current != table {
			return spliceFromRef(sqlText, match, table), true
		}
		return sqlText, false
	}

	// Different name. Replace only when it is clearly a mangled version of
	// the expected one, not a deliberate reference.
	truncated := len(current) < len(table)/2 ||
		(len(current) < 5 && len(table) > 20) ||
		len(current) < 10
	if truncated {
		return spliceFromRef(sqlText, match, table), true
	}
	return sqlText, false
}

func currentTableRef(sqlText string, match []int) string {
	// Groups: 2 quoted, 3 single-quoted, 4 bare.
	for _, group := range []int{2, 3, 4} {
		if match[2*group] >= 0 {
			return sqlText[match[2*group]:match[2*group+1]]
		}
	}
	return ""
}

func spliceFromRef(sqlText string, match []int, table string) string {
	return sqlText[:match[2]] + quoteTable(table) + sqlText[match[3]:]
}

func needsQuotes(table string) bool {
	return len(table) > 30 || strings.Contains(table, "_")
}

func quoteTable(table string) string {
	if needsQuotes(table) {
		return `"` + table + `"`
	}
	return table
}

// repairDanglingClauses removes WHERE, GROUP BY, and ORDER BY fragments that
// arrived without a condition or column. Runs to a fixed point: stripping an
// empty WHERE can leave a trailing GROUP BY behind.
func repairDanglingClauses(sqlText string) (string, bool) {
	original := sqlText
	for {
		before := sqlText
		sqlText = emptyWhere.ReplaceAllString(sqlText, " $1")
		sqlText = emptyGroupBy.ReplaceAllString(sqlText, " $1")
		sqlText = emptyOrderBy.ReplaceAllString(sqlText, " $1")
		sqlText = trailingGroupBy.ReplaceAllString(sqlText, "")
		sqlText = trailingOrderBy.ReplaceAllString(sqlText, "")
		sqlText = trailingWhere.ReplaceAllString(sqlText, "")
		sqlText = strings.TrimSpace(sqlText)
		if sqlText == before {
			break
		}
	}
	return sqlText, sqlText != original
}

// trimOverlongStatement cuts statements that blew past the sanity cap, which
// in practice means explanation text survived extraction. Prefers cutting
// right after a LIMIT clause; otherwise cuts at the cap on a word boundary.
func trimOverlongStatement(sqlText string, maxLen int) (string, bool) {
	if maxLen <= 0 || len(sqlText) <= maxLen {
		return sqlText, false
	}
	if loc := limitClausePattern.FindStringIndex(sqlText); loc != nil && loc[1] <= maxLen {
		return strings.TrimSpace(sqlText[:loc[1]]), true
	}
	trimmed := sqlText[:maxLen]
	if idx := strings.LastIndexAny(trimmed, " \t\n"); idx > 0 {
		trimmed = trimmed[:idx]
	}
	trimmed, _ = repairDanglingClauses(strings.TrimSpace(trimmed))
	return trimmed, true
}

// repairAggregateGroupBy adds the GROUP BY that a per-value count needs.
// SELECT "Col", COUNT(*) without GROUP BY returns one meaningless row.
func repairAggregateGroupBy(sqlText string) (string, bool) {
	if !countStarPattern.MatchString(sqlText) || groupByPattern.MatchString(sqlText) {
		return sqlText, false
	}
	m := selectColAndCount.FindStringSubmatch(sqlText)
	if m == nil {
		return sqlText, false
	}
	clause := fmt.Sprintf(` GROUP BY "%s"`, m[1])
	if loc := orderByPattern.FindStringIndex(sqlText); loc != nil {
		return sqlText[:loc[0]] + clause + sqlText[loc[0]:], true
	}
	return sqlText + clause, true
}

// repairRowWindow turns a bare SELECT * into an ordered window when the
// question asked for the first or last N rows. "just N" and "only N" read as
// last N.
func repairRowWindow(sqlText, question string) (string, bool) {
	if !simpleSelectAll.MatchString(sqlText) {
		return sqlText, false
	}
	upper := strings.ToUpper(sqlText)
	if strings.Contains(upper, "WHERE") ||
		strings.Contains(upper, "GROUP BY") ||
		strings.Contains(upper, "ORDER BY") ||
		strings.Contains(upper, "LIMIT") {
		return sqlText, false
	}

	lower := strings.ToLower(question)
	direction := ""
	count := ""
	switch {
	case lastRowsPattern.MatchString(lower):
		direction, count = "DESC", lastRowsPattern.FindStringSubmatch(lower)[1]
	case firstRowsPattern.MatchString(lower):
		direction, count = "ASC", firstRowsPattern.FindStringSubmatch(lower)[1]
	case justRowsPattern.MatchString(lower):
		direction, count = "DESC", justRowsPattern.FindStringSubmatch(lower)[1]
	default:
		return sqlText, false
	}
	return fmt.Sprintf("%s ORDER BY %s %s LIMIT %s", sqlText, dataset.OrderColumn, direction, count), true
}
