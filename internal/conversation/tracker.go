package conversation

import (
	"strings"

	"github.com/tabletalk/tabletalk/internal/intent"
)

// PendingKind is the intent behind the utterance that originally triggered a
// disambiguation prompt.
type PendingKind string

const (
	PendingMetadata  PendingKind = "metadata"
	PendingStats     PendingKind = "stats"
	PendingDataQuery PendingKind = "data_query"
)

// Followup describes a turn that answers a "which file did you mean" prompt.
// OriginalUtterance is the query that was interrupted by the prompt; the
// engine replays it against the dataset the user just picked.
type Followup struct {
	OriginalUtterance string
	Kind              PendingKind
}

// Disambiguation prompt markers. The tracker recognizes its own prompts by
// these fragments, so the prompt texts and this list must stay in sync.
var promptMarkers = []string{
	"Which file would you like to know about",
	"Which file would you like to query",
	"Which file would you like to analyze",
}

// IsDisambiguationPrompt reports whether an assistant turn asked the user to
// pick a dataset.
func IsDisambiguationPrompt(content string) bool {
	for _, marker := range promptMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return strings.Contains(content, "I found") &&
		strings.Contains(content, "files") &&
		strings.Contains(content, "Which file")
}

// DetectFollowup inspects the recent turns (most recent first) and reports
// whether the current utterance answers a pending disambiguation prompt. When
// it does, the returned Followup carries the interrupted utterance and its
// classified intent; if the interrupted utterance cannot be recovered, the
// current one is classified instead.
func DetectFollowup(turns []Turn, current string) (Followup, bool) {
	var lastAssistant string
	for _, turn := range turns {
		if turn.Role == RoleAssistant {
			lastAssistant = turn.Content
			break
		}
	}
	if !IsDisambiguationPrompt(lastAssistant) {
		return Followup{}, false
	}

	// Scan past the prompt for the user turn that triggered it. A user turn
	// sitting between two prompts was itself a failed pick, not the original
	// question, so keep scanning past it.
	original := ""
	seenPrompt := false
	for i, turn := range turns {
		if turn.Role == RoleAssistant && IsDisambiguationPrompt(turn.Content) {
			seenPrompt = true
			continue
		}
		if turn.Role == RoleUser && seenPrompt {
			if i+1 < len(turns) && turns[i+1].Role == RoleAssistant && IsDisambiguationPrompt(turns[i+1].Content) {
				continue
			}
			original = turn.Content
			break
		}
	}

	classified := original
	if classified == "" {
		classified = current
	}
	followup := Followup{OriginalUtterance: original, Kind: classifyPending(classified)}
	return followup, true
}

func classifyPending(utterance string) PendingKind {
	switch {
	case intent.IsFileMetadataQuestion(utterance):
		return PendingMetadata
	case intent.IsStatsRequest(utterance):
		return PendingStats
	default:
		return PendingDataQuery
	}
}
