// Package synth turns a natural-language question into a single SQL
// statement. The oracle's output is untrusted prose: everything it returns
// goes through extraction and an ordered set of idempotent repairs before
// the validator ever sees it.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tabletalk/tabletalk/internal/conversation"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/oracle"
)

// ErrNoStatement means the completion contained nothing that could be
// extracted as a SELECT statement.
var ErrNoStatement = errors.New("synth: no SQL statement in completion")

// ErrNotUpdate means the edit path got a completion that is not an UPDATE
// statement.
var ErrNotUpdate = errors.New("synth: completion is not an UPDATE statement")

// Catalog is the prompt-facing view of one dataset: its table name and the
// generated summary describing columns and values.
type Catalog struct {
	DatasetID string
	Summary   string
}

type Config struct {
	// MaxStatementLength is the sanity cap; longer statements are assumed to
	// carry explanation text and get trimmed at the last recognizable clause.
	MaxStatementLength int
	// FilterProbeLimit caps the dataset probes one value-filter repair may
	// issue.
	FilterProbeLimit int
	// PromptHistoryWindow is how many trailing turns go into the prompt.
	PromptHistoryWindow int
	// DistinctSampleLimit bounds the distinct-value sample per probed column.
	DistinctSampleLimit int
}

func (c *Config) applyDefaults() {
	if c.MaxStatementLength <= 0 {
		c.MaxStatementLength = 2000
	}
	if c.FilterProbeLimit < 0 {
		c.FilterProbeLimit = 0
	}
	if c.PromptHistoryWindow <= 0 {
		c.PromptHistoryWindow = 6
	}
	if c.DistinctSampleLimit <= 0 {
		c.DistinctSampleLimit = 50
	}
}

// Synthesizer produces SELECT and UPDATE statements for one question against
// one dataset table. It is stateless; all context arrives in the Request.
type Synthesizer struct {
	completer oracle.Completer
	store     dataset.Store
	cfg       Config
	logger    *slog.Logger
}

func New(completer oracle.Completer, store dataset.Store, cfg Config, logger *slog.Logger) *Synthesizer {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{completer: completer, store: store, cfg: cfg, logger: logger}
}

// Request carries everything one SELECT synthesis needs. History is in
// chronological order; Table is the resolved dataset table.
type Request struct {
	Question string
	Table    string
	Catalogs []Catalog
	History  []conversation.Turn
}

// Generate asks the oracle for a SELECT answering the question, extracts the
// statement from the raw completion, and runs the repair pipeline over it.
// The result still has to pass the validator; Generate only guarantees a
// statement-shaped string.
func (s *Synthesizer) Generate(ctx context.Context, req Request) (string, error) {
	system, user := buildSelectPrompt(req, s.cfg.PromptHistoryWindow)
	raw, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		observability.ObserveOracleFailure()
		return "", fmt.Errorf("synth: %w", err)
	}

	sqlText, err := ExtractSelect(raw)
	if err != nil {
		return "", err
	}
	return s.applyRepairs(ctx, sqlText, req), nil
}

// applyRepairs runs the repair passes in a fixed order. Each pass is
// idempotent and independent; a pass that changes the statement is counted
// and logged under its name.
func (s *Synthesizer) applyRepairs(ctx context.Context, sqlText string, req Request) string {
	passes := []struct {
		name  string
		apply func(string) (string, bool)
	}{
		{"table_name", func(q string) (string, bool) { return repairTableName(q, req.Table) }},
		{"dangling_clause", repairDanglingClauses},
		{"length_trim", func(q string) (string, bool) { return trimOverlongStatement(q, s.cfg.MaxStatementLength) }},
		{"aggregate_group_by", repairAggregateGroupBy},
		{"row_window", func(q string) (string, bool) { return repairRowWindow(q, req.Question) }},
	}
	for _, pass := range passes {
		fixed, changed := pass.apply(sqlText)
		if !changed {
			continue
		}
		observability.ObserveRepair(pass.name)
		s.logger.Debug("repaired synthesized sql",
			slog.String("repair", pass.name),
			slog.String("sql", fixed))
		sqlText = fixed
	}

	if fixed, changed := s.repairMissingFilter(ctx, sqlText, req.Question, req.Table); changed {
		observability.ObserveRepair("value_filter")
		s.logger.Debug("repaired synthesized sql",
			slog.String("repair", "value_filter"),
			slog.String("sql", fixed))
		sqlText = fixed
	}
	return sqlText
}
