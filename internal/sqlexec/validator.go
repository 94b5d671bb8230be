// Package sqlexec guards and runs the SQL the synthesis pipeline produces.
// The model's output is untrusted: everything goes through the whitelist
// validator before it reaches the dataset store.
package sqlexec

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnsafeQuery marks statements the validator rejected. The reason is in
// the wrapping error text; callers only branch on the sentinel.
var ErrUnsafeQuery = errors.New("sqlexec: unsafe query")

var (
	tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	// Whole-word matches only: a column named "updated_at" must not trip
	// the "update" keyword.
	dangerousKeywords = []*regexp.Regexp{
		regexp.MustCompile(`\bdrop\b`),
		regexp.MustCompile(`\bdelete\b`),
		regexp.MustCompile(`\btruncate\b`),
		regexp.MustCompile(`\balter\b`),
		regexp.MustCompile(`\binsert\b`),
		regexp.MustCompile(`\bupdate\b`),
		regexp.MustCompile(`\bgrant\b`),
		regexp.MustCompile(`\brevoke\b`),
		regexp.MustCompile(`\bexec\b`),
		regexp.MustCompile(`\bexecute\b`),
	}
)

type Validator struct {
	minMatchSegments int
}

// NewValidator builds a validator. minMatchSegments is the number of trailing
// underscore segments of a long table name that must appear in the statement
// for the partial-match fallback to accept it.
func NewValidator(minMatchSegments int) *Validator {
	if minMatchSegments < 1 {
		minMatchSegments = 3
	}
	return &Validator{minMatchSegments: minMatchSegments}
}

func (v *Validator) ValidateTableName(table string) error {
	if !tableNamePattern.MatchString(table) {
		return fmt.Errorf("%w: invalid table name %q", ErrUnsafeQuery, table)
	}
	return nil
}

// NormalizeTableReference strips schema prefixes the model sometimes invents
// (base.table, main.table); dataset tables live in the default schema.
func NormalizeTableReference(sqlText, expectedTable string) string {
	pattern := regexp.MustCompile(`(?i)\b(?:base|main)\.` + regexp.QuoteMeta(expectedTable) + `\b`)
	return pattern.ReplaceAllString(sqlText, expectedTable)
}

// ValidateSelect enforces the read-path contract: SELECT only, no dangerous
// keywords anywhere, and the statement must reference the expected table.
func (v *Validator) ValidateSelect(sqlText, expectedTable string) error {
	if err := v.ValidateTableName(expectedTable); err != nil {
		return err
	}
	lower := strings.ToLower(strings.TrimSpace(sqlText))
	if !strings.HasPrefix(lower, "select") {
		return fmt.Errorf("%w: only SELECT statements are allowed", ErrUnsafeQuery)
	}
	for _, keyword := range dangerousKeywords {
		if keyword.MatchString(lower) {
			return fmt.Errorf("%w: contains keyword %q", ErrUnsafeQuery, strings.Trim(keyword.String(), `\b`))
		}
	}
	if !v.referencesTable(lower, expectedTable) {
		return fmt.Errorf("%w: statement does not reference table %q", ErrUnsafeQuery, expectedTable)
	}
	return nil
}

// ValidateUpdate enforces the edit-path contract: UPDATE only, no other
// dangerous keyword, and the statement must reference the expected table.
func (v *Validator) ValidateUpdate(sqlText, expectedTable string) error {
	if err := v.ValidateTableName(expectedTable); err != nil {
		return err
	}
	lower := strings.ToLower(strings.TrimSpace(sqlText))
	if !strings.HasPrefix(lower, "update") {
		return fmt.Errorf("%w: only UPDATE statements are allowed for edits", ErrUnsafeQuery)
	}
	for _, keyword := range dangerousKeywords {
		raw := strings.Trim(keyword.String(), `\b`)
		if raw == "update" {
			continue
		}
		if keyword.MatchString(lower) {
			return fmt.Errorf("%w: contains keyword %q", ErrUnsafeQuery, raw)
		}
	}
	if !v.referencesTable(lower, expectedTable) {
		return fmt.Errorf("%w: statement does not reference table %q", ErrUnsafeQuery, expectedTable)
	}
	return nil
}

// referencesTable accepts a direct (case-insensitive) mention of the table.
// Long generated table names sometimes come back slightly mangled, so names
// with four or more underscore segments also pass when enough of their
// trailing segments appear in the statement.
func (v *Validator) referencesTable(lowerSQL, expectedTable string) bool {
	expectedLower := strings.ToLower(expectedTable)
	if strings.Contains(lowerSQL, expectedLower) {
		return true
	}

	parts := strings.Split(expectedLower, "_")
	if len(parts) < 4 {
		return false
	}
	unique := parts[len(parts)-4:]
	matches := 0
	for _, part := range unique {
		if part != "" && strings.Contains(lowerSQL, part) {
			matches++
		}
	}
	return matches >= v.minMatchSegments
}
