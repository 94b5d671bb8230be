package synth

import (
	"context"
	"fmt"

	"github.com/tabletalk/tabletalk/internal/conversation"
	"github.com/tabletalk/tabletalk/internal/observability"
)

// editHistoryWindow is how many trailing turns the edit prompt sees. Edits
// lean on context ("the last row", "that data") more than queries do, so the
// window is wider than the query prompt's.
const editHistoryWindow = 10

// EditRequest carries one natural-language edit instruction against one
// dataset table.
type EditRequest struct {
	Instruction    string
	Table          string
	CatalogSummary string
	History        []conversation.Turn
}

// GenerateUpdate asks the oracle for an UPDATE statement implementing the
// instruction. Anything that is not an UPDATE is rejected here; the validator
// still runs afterwards.
func (s *Synthesizer) GenerateUpdate(ctx context.Context, req EditRequest) (string, error) {
	system, user := buildUpdatePrompt(req, editHistoryWindow)
	raw, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		observability.ObserveOracleFailure()
		return "", fmt.Errorf("synth: %w", err)
	}
	return ExtractUpdate(raw)
}
