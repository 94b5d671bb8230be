package synth

import (
	"regexp"
	"strings"
)

var (
	fencePattern      = regexp.MustCompile("(?i)```(?:sql)?")
	selectStart       = regexp.MustCompile(`(?i)\bselect\b`)
	updateStart       = regexp.MustCompile(`(?i)\bupdate\b`)
	explanationLine   = regexp.MustCompile(`(?i)^(note|explanation|this query|the query|result|returns|the user|based on|applying|transforming|given|wait|however|since|but|also|selecting|using|i will|i should|the system|the instruction)\b`)
	proseReference    = regexp.MustCompile(`(?i)\b(the|this|that|these|those)\s+(query|file|user|statement|sql)\b`)
	trailingProse     = regexp.MustCompile(`(?i)\.\s+(The|This|That|These|Those|Note|Explanation|Wait|However|Since|But|Also|Given|Applying|Transforming|Selecting|Using|I will|I should)\b.*$`)
	boundedSelect     = regexp.MustCompile(`(?i)\bSELECT\b.+?\bFROM\b.+?\bLIMIT\s+\d+(?:\s+OFFSET\s+\d+)?`)
	limitClause       = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
)

// ExtractSelect pulls the first SELECT statement out of a raw completion.
// The completion may carry markdown fences, leading reasoning, and trailing
// explanation; everything around the statement is discarded.
func ExtractSelect(raw string) (string, error) {
	text := fencePattern.ReplaceAllString(raw, "")

	loc := selectStart.FindStringIndex(text)
	if loc == nil {
		return "", ErrNoStatement
	}
	text = text[loc[0]:]

	// Walk lines from the SELECT, stopping at the first line that reads as
	// explanation rather than SQL.
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(kept) > 0 {
			if explanationLine.MatchString(line) {
				break
			}
			if proseReference.MatchString(line) && !looksQuoted(line) {
				break
			}
		}
		kept = append(kept, line)
		if strings.HasSuffix(line, ";") {
			break
		}
	}

	statement := strings.Join(kept, " ")
	statement = cutAfterLimit(statement)
	statement = trailingProse.ReplaceAllString(statement, "")
	statement = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(statement), ";"))

	if !strings.HasPrefix(strings.ToUpper(statement), "SELECT") {
		return "", ErrNoStatement
	}
	return statement, nil
}

// ExtractUpdate pulls the UPDATE statement out of a raw edit completion.
func ExtractUpdate(raw string) (string, error) {
	text := strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))

	loc := updateStart.FindStringIndex(text)
	if loc == nil {
		return "", ErrNotUpdate
	}
	text = text[loc[0]:]

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if explanationLine.MatchString(line) {
			break
		}
		kept = append(kept, line)
		if strings.HasSuffix(line, ";") {
			break
		}
	}

	statement := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(strings.Join(kept, " ")), ";"))
	if !strings.HasPrefix(strings.ToUpper(statement), "UPDATE") {
		return "", ErrNotUpdate
	}
	return statement, nil
}

// cutAfterLimit drops whatever follows a SELECT ... FROM ... LIMIT n shape.
// Completions routinely glue prose straight onto the LIMIT clause without any
// sentence boundary. Statements with a second LIMIT (a subquery) are left
// alone; cutting at the first one would split the statement.
func cutAfterLimit(statement string) string {
	bounded := boundedSelect.FindString(statement)
	if bounded == "" || len(bounded) == len(statement) {
		return statement
	}
	if limitClause.MatchString(statement[len(bounded):]) {
		return statement
	}
	return bounded
}

// looksQuoted reports whether a line carries enough quote characters that a
// prose-like phrase is plausibly inside a string literal.
func looksQuoted(line string) bool {
	return strings.Count(line, "'") >= 2 || strings.Count(line, `"`) >= 2
}
