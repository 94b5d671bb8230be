package conversation

import "testing"

func promptTurns(original, prompt string) []Turn {
	// Most recent first: [0] user reply, [1] assistant prompt, [2] original query.
	return []Turn{
		{Role: RoleUser, Content: "file 2"},
		{Role: RoleAssistant, Content: prompt},
		{Role: RoleUser, Content: original},
	}
}

func TestDetectFollowupRecoversOriginalQuery(t *testing.T) {
	turns := promptTurns(
		"show me the last 5 rows",
		"I found 2 files. Which file would you like to query?\n\n- File 1: sales.csv\n- File 2: employees.csv",
	)
	followup, ok := DetectFollowup(turns, "file 2")
	if !ok {
		t.Fatal("DetectFollowup() = false, want true")
	}
	if followup.OriginalUtterance != "show me the last 5 rows" {
		t.Fatalf("OriginalUtterance = %q", followup.OriginalUtterance)
	}
	if followup.Kind != PendingDataQuery {
		t.Fatalf("Kind = %q, want %q", followup.Kind, PendingDataQuery)
	}
}

func TestDetectFollowupClassifiesMetadataIntent(t *testing.T) {
	turns := promptTurns(
		"tell me about the file",
		"I found 2 files. Which file would you like to know about?",
	)
	followup, ok := DetectFollowup(turns, "file 1")
	if !ok {
		t.Fatal("DetectFollowup() = false, want true")
	}
	if followup.Kind != PendingMetadata {
		t.Fatalf("Kind = %q, want %q", followup.Kind, PendingMetadata)
	}
}

func TestDetectFollowupClassifiesStatsIntent(t *testing.T) {
	turns := promptTurns(
		"find outliers in the data",
		"I found 3 files. Which file would you like to analyze?",
	)
	followup, ok := DetectFollowup(turns, "2")
	if !ok {
		t.Fatal("DetectFollowup() = false, want true")
	}
	if followup.Kind != PendingStats {
		t.Fatalf("Kind = %q, want %q", followup.Kind, PendingStats)
	}
}

func TestDetectFollowupScansPastFailedPick(t *testing.T) {
	prompt := "I found 2 files. Which file would you like to query?\n\n- File 1: sales.csv\n- File 2: employees.csv"
	turns := []Turn{
		{Role: RoleAssistant, Content: prompt},
		{Role: RoleUser, Content: "file 9"},
		{Role: RoleAssistant, Content: prompt},
		{Role: RoleUser, Content: "show me the sources"},
	}
	followup, ok := DetectFollowup(turns, "2")
	if !ok {
		t.Fatal("DetectFollowup() = false, want true")
	}
	if followup.OriginalUtterance != "show me the sources" {
		t.Fatalf("OriginalUtterance = %q, want the interrupted question", followup.OriginalUtterance)
	}
	if followup.Kind != PendingDataQuery {
		t.Fatalf("Kind = %q, want %q", followup.Kind, PendingDataQuery)
	}
}

func TestDetectFollowupWithoutPrompt(t *testing.T) {
	turns := []Turn{
		{Role: RoleAssistant, Content: "I found 5 result(s) for your query."},
		{Role: RoleUser, Content: "show me the sources"},
	}
	if _, ok := DetectFollowup(turns, "file 2"); ok {
		t.Fatal("DetectFollowup() should not fire without a pending prompt")
	}
}

func TestDetectFollowupFallsBackToCurrentUtterance(t *testing.T) {
	turns := []Turn{
		{Role: RoleAssistant, Content: "I found 2 files. Which file would you like to query?"},
	}
	followup, ok := DetectFollowup(turns, "tell me about file 1")
	if !ok {
		t.Fatal("DetectFollowup() = false, want true")
	}
	if followup.OriginalUtterance != "" {
		t.Fatalf("OriginalUtterance = %q, want empty", followup.OriginalUtterance)
	}
	if followup.Kind != PendingMetadata {
		t.Fatalf("Kind = %q, want %q", followup.Kind, PendingMetadata)
	}
}

func TestLastAction(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "show it as a table"},
		{Role: RoleAssistant, Content: "done", Action: &Action{SQL: `SELECT "Source", COUNT(*) FROM t GROUP BY "Source"`, DatasetID: "t"}},
		{Role: RoleAssistant, Content: "hello!"},
	}
	action, ok := LastAction(turns)
	if !ok {
		t.Fatal("LastAction() = false, want true")
	}
	if action.DatasetID != "t" {
		t.Fatalf("DatasetID = %q", action.DatasetID)
	}

	if _, ok := LastAction([]Turn{{Role: RoleAssistant, Content: "hi"}}); ok {
		t.Fatal("LastAction() without structured turns should be false")
	}
}
