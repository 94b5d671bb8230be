// Package resolve picks the dataset an utterance is talking about. The rules
// run in a fixed order and prefer asking the user over guessing: when several
// datasets exist and no rule produces a confident match, Resolve returns
// ok=false and the caller issues a disambiguation prompt.
package resolve

import (
	"regexp"
	"strconv"
	"strings"
)

// Candidate is one dataset the resolver can choose from, in catalog listing
// order. Positional references ("file 2", "second file") index this order.
type Candidate struct {
	ID          string
	DisplayName string
	Summary     string
}

type Resolver struct {
	minScore   int
	isMetadata func(string) bool
}

// NewResolver builds a resolver with the given keyword-score confidence gate.
// isMetadata is the file-metadata classifier; the resolver consults it to
// avoid keyword-guessing a dataset for "tell me about the file".
func NewResolver(minScore int, isMetadata func(string) bool) *Resolver {
	if minScore < 1 {
		minScore = 1
	}
	if isMetadata == nil {
		isMetadata = func(string) bool { return false }
	}
	return &Resolver{minScore: minScore, isMetadata: isMetadata}
}

var (
	fileNumberPattern = regexp.MustCompile(`file\s*(\d+)`)
	bareNumberPattern = regexp.MustCompile(`^(\d+)$`)
	firstFilePattern  = regexp.MustCompile(`first\s*file`)
	secondFilePattern = regexp.MustCompile(`second\s*file`)
	thirdFilePattern  = regexp.MustCompile(`third\s*file`)
)

// Words too generic to identify a dataset; keyword scoring ignores them.
var stopWords = map[string]struct{}{
	"show": {}, "the": {}, "last": {}, "first": {}, "rows": {}, "row": {},
	"data": {}, "me": {}, "can": {}, "you": {}, "get": {}, "give": {},
	"tell": {}, "what": {}, "is": {}, "are": {}, "in": {}, "of": {},
	"with": {}, "count": {}, "how": {}, "many": {}, "from": {}, "select": {},
	"all": {}, "display": {}, "list": {},
}

// Resolve returns the chosen dataset ID, or ok=false when the utterance is
// ambiguous and the caller must ask which dataset was meant.
func (r *Resolver) Resolve(utterance string, candidates []Candidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) == 1 {
		return candidates[0].ID, true
	}

	lower := strings.ToLower(utterance)

	if match := fileNumberPattern.FindStringSubmatch(lower); match != nil {
		if num, err := strconv.Atoi(match[1]); err == nil && num >= 1 && num <= len(candidates) {
			return candidates[num-1].ID, true
		}
	}

	// A bare integer only counts as a selection when the whole utterance is
	// terse enough to be a reply to a disambiguation prompt.
	trimmed := strings.TrimSpace(lower)
	if len(trimmed) <= 10 {
		if match := bareNumberPattern.FindStringSubmatch(trimmed); match != nil {
			if num, err := strconv.Atoi(match[1]); err == nil && num >= 1 && num <= len(candidates) {
				return candidates[num-1].ID, true
			}
		}
	}

	if firstFilePattern.MatchString(lower) {
		return candidates[0].ID, true
	}
	if secondFilePattern.MatchString(lower) && len(candidates) >= 2 {
		return candidates[1].ID, true
	}
	if thirdFilePattern.MatchString(lower) && len(candidates) >= 3 {
		return candidates[2].ID, true
	}

	for _, candidate := range candidates {
		if strings.Contains(lower, strings.ToLower(candidate.ID)) {
			return candidate.ID, true
		}
	}

	// Metadata questions with no dataset named need the prompt, not a guess.
	if r.isMetadata(utterance) {
		return "", false
	}

	bestID, bestScore := "", 0
	keywords := meaningfulKeywords(lower)
	for _, candidate := range candidates {
		summary := strings.ToLower(candidate.Summary)
		score := 0
		for _, keyword := range keywords {
			if strings.Contains(summary, keyword) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestID = candidate.ID
		}
	}
	if bestScore >= r.minScore {
		return bestID, true
	}
	return "", false
}

func meaningfulKeywords(lower string) []string {
	var keywords []string
	for _, word := range strings.Fields(lower) {
		if _, stop := stopWords[word]; stop {
			continue
		}
		if len(word) <= 2 {
			continue
		}
		keywords = append(keywords, word)
	}
	return keywords
}
