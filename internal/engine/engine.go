// Package engine routes chat messages. Every turn is classified by the
// intent heuristics, resolved to a dataset, and dispatched to one of the
// flows: small talk, canned capability answers, chart replay, edits, the
// statistics analyzer, file metadata, or SQL synthesis. All conversation
// state lives in persisted turns; the engine holds nothing between requests.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/conversation"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/intent"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/oracle"
	"github.com/tabletalk/tabletalk/internal/resolve"
	"github.com/tabletalk/tabletalk/internal/sqlexec"
	"github.com/tabletalk/tabletalk/internal/stats"
	"github.com/tabletalk/tabletalk/internal/synth"
	"github.com/tabletalk/tabletalk/internal/viz"
)

// historyLimit is how many recent turns feed follow-up detection and the
// synthesis prompts.
const historyLimit = 10

type Engine struct {
	repo      catalog.Repository
	resolver  *resolve.Resolver
	synth     *synth.Synthesizer
	executor  *sqlexec.Executor
	analyzer  *stats.Analyzer
	completer oracle.Completer
	logger    *slog.Logger
}

func New(repo catalog.Repository, resolver *resolve.Resolver, synthesizer *synth.Synthesizer, executor *sqlexec.Executor, analyzer *stats.Analyzer, completer oracle.Completer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:      repo,
		resolver:  resolver,
		synth:     synthesizer,
		executor:  executor,
		analyzer:  analyzer,
		completer: completer,
		logger:    logger,
	}
}

type Request struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// Data is the structured side of a response: query results for reads,
// affected-row counts for edits.
type Data struct {
	Rows         []map[string]any `json:"rows,omitempty"`
	Columns      []string         `json:"columns,omitempty"`
	SQL          string           `json:"sql_query,omitempty"`
	DatasetID    string           `json:"dataset_id,omitempty"`
	RowsAffected int64            `json:"rows_affected,omitempty"`
}

type Response struct {
	SessionID     string      `json:"session_id"`
	Message       string      `json:"message"`
	Data          *Data       `json:"data,omitempty"`
	Visualization *viz.Config `json:"visualization,omitempty"`
}

// turnContext carries the per-request state every flow needs.
type turnContext struct {
	session conversation.Session
	message string
	entries []catalog.Entry
	// turns is the recent history, most recent first, including the turn
	// being handled.
	turns []conversation.Turn
}

// SendMessage handles one chat turn end to end: session bookkeeping, intent
// routing, and persisting both sides of the exchange.
func (e *Engine) SendMessage(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Response{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, fmt.Errorf("message is required")
	}

	session, err := e.ensureSession(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if _, err := e.repo.AppendTurn(ctx, catalog.AppendTurnInput{
		SessionID: session.ID,
		Role:      conversation.RoleUser,
		Content:   req.Message,
	}); err != nil {
		return Response{}, fmt.Errorf("persist user turn: %w", err)
	}

	turns, err := e.repo.RecentTurns(ctx, session.ID, historyLimit)
	if err != nil {
		return Response{}, fmt.Errorf("load history: %w", err)
	}
	entries, err := e.repo.ListEntries(ctx, req.UserID)
	if err != nil {
		return Response{}, fmt.Errorf("list datasets: %w", err)
	}

	tc := &turnContext{session: session, message: req.Message, entries: entries, turns: turns}

	kind := intent.Classify(req.Message)
	observability.ObserveIntent(string(kind))
	e.logger.Info("chat turn",
		"session_id", session.ID,
		"user_id", req.UserID,
		"intent", string(kind))

	if len(entries) == 0 {
		if kind == intent.KindSmallTalk {
			return e.smallTalk(ctx, tc)
		}
		return e.respond(ctx, tc, noFilesMessage, nil, nil, nil)
	}

	switch kind {
	case intent.KindSmallTalk:
		return e.smallTalk(ctx, tc)
	case intent.KindChartTypeChange:
		return e.chartTypeChange(ctx, tc)
	case intent.KindColorCustomization:
		return e.respond(ctx, tc, colorCustomizationMessage, nil, nil, nil)
	case intent.KindEditCapability:
		return e.respond(ctx, tc, editCapabilityMessage, nil, nil, nil)
	case intent.KindEdit:
		return e.edit(ctx, tc)
	case intent.KindStats:
		return e.statsFlow(ctx, tc, tc.message)
	}

	// A terse reply like "file 2" answers a pending disambiguation prompt;
	// replay the interrupted question against the chosen dataset.
	if followup, ok := conversation.DetectFollowup(turns, req.Message); ok {
		return e.resumeFollowup(ctx, tc, followup)
	}

	if kind == intent.KindMetadata {
		return e.metadata(ctx, tc)
	}
	return e.dataQuery(ctx, tc, tc.message)
}

func (e *Engine) ensureSession(ctx context.Context, req Request) (conversation.Session, error) {
	if req.SessionID != "" {
		session, err := e.repo.GetSession(ctx, req.SessionID)
		if err != nil {
			return conversation.Session{}, err
		}
		return session, nil
	}
	session, err := e.repo.CreateSession(ctx, uuid.NewString(), req.UserID)
	if err != nil {
		return conversation.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// respond persists the assistant turn and assembles the response.
func (e *Engine) respond(ctx context.Context, tc *turnContext, message string, action *conversation.Action, data *Data, vizConfig *viz.Config) (Response, error) {
	if _, err := e.repo.AppendTurn(ctx, catalog.AppendTurnInput{
		SessionID: tc.session.ID,
		Role:      conversation.RoleAssistant,
		Content:   message,
		Action:    action,
	}); err != nil {
		return Response{}, fmt.Errorf("persist assistant turn: %w", err)
	}
	return Response{
		SessionID:     tc.session.ID,
		Message:       message,
		Data:          data,
		Visualization: vizConfig,
	}, nil
}

func (e *Engine) smallTalk(ctx context.Context, tc *turnContext) (Response, error) {
	reply, err := e.completer.Complete(ctx, smallTalkSystemPrompt, tc.message)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			observability.ObserveOracleFailure()
			e.logger.Warn("small talk completion failed", "error", err)
		}
		reply = smallTalkFallbackMessage
	}
	return e.respond(ctx, tc, strings.TrimSpace(reply), nil, nil, nil)
}

// resolveDataset picks the dataset the utterance refers to, or emits a
// disambiguation prompt and reports done=true.
func (e *Engine) resolveDataset(ctx context.Context, tc *turnContext, utterance string, kind conversation.PendingKind) (catalog.Entry, Response, bool, error) {
	candidates := make([]resolve.Candidate, len(tc.entries))
	for i, entry := range tc.entries {
		candidates[i] = resolve.Candidate{ID: entry.DatasetID, DisplayName: entry.DisplayName, Summary: entry.Summary}
	}
	datasetID, ok := e.resolver.Resolve(utterance, candidates)
	if !ok {
		resp, err := e.disambiguationPrompt(ctx, tc, kind)
		return catalog.Entry{}, resp, true, err
	}
	for _, entry := range tc.entries {
		if entry.DatasetID == datasetID {
			return entry, Response{}, false, nil
		}
	}
	return catalog.Entry{}, Response{}, false, catalog.ErrNotFound
}

func (e *Engine) disambiguationPrompt(ctx context.Context, tc *turnContext, kind conversation.PendingKind) (Response, error) {
	observability.ObserveDisambiguationPrompt()
	listing := fileListing(tc.entries)
	var text string
	switch kind {
	case conversation.PendingMetadata:
		text = fmt.Sprintf("I found %d files. Which file would you like to know about?\n\n%s\n\nYou can specify a file by saying:\n- 'file 1', 'file2', 'file 3', etc.\n- 'tell me about file 1'\n- 'what is file 2 about'",
			len(tc.entries), listing)
	case conversation.PendingStats:
		text = fmt.Sprintf("I found %d files. Which file would you like to analyze for anomalies?\n\n%s\n\nYou can specify a file by saying:\n- 'show anomalies in file 1'\n- 'find outliers in file 2'",
			len(tc.entries), listing)
	default:
		text = fmt.Sprintf("I found %d files. Which file would you like to query?\n\n%s\n\nPlease specify which file by saying:\n- 'file 1' or 'file2' or 'file 3', etc.\n- 'show last 5 rows from file 1'\n- 'file 2: show last 5 rows'",
			len(tc.entries), listing)
	}
	return e.respond(ctx, tc, text, nil, nil, nil)
}

func fileListing(entries []catalog.Entry) string {
	lines := make([]string, len(entries))
	for i, entry := range entries {
		lines[i] = fmt.Sprintf("- File %d: %s", i+1, entry.DisplayName)
	}
	return strings.Join(lines, "\n")
}

// resumeFollowup replays the interrupted question against the dataset the
// user just picked.
func (e *Engine) resumeFollowup(ctx context.Context, tc *turnContext, followup conversation.Followup) (Response, error) {
	candidates := make([]resolve.Candidate, len(tc.entries))
	for i, entry := range tc.entries {
		candidates[i] = resolve.Candidate{ID: entry.DatasetID, DisplayName: entry.DisplayName, Summary: entry.Summary}
	}
	datasetID, ok := e.resolver.Resolve(tc.message, candidates)
	if !ok {
		// Re-issue the same prompt the tracker knows how to recognize, so
		// the next pick still resumes the interrupted question.
		return e.disambiguationPrompt(ctx, tc, followup.Kind)
	}

	var selected catalog.Entry
	for _, entry := range tc.entries {
		if entry.DatasetID == datasetID {
			selected = entry
		}
	}

	question := followup.OriginalUtterance
	if question == "" {
		question = tc.message
	}
	switch followup.Kind {
	case conversation.PendingMetadata:
		return e.metadataFor(ctx, tc, selected)
	case conversation.PendingStats:
		return e.runStats(ctx, tc, selected, question)
	default:
		return e.runDataQuery(ctx, tc, selected, question)
	}
}

func (e *Engine) metadata(ctx context.Context, tc *turnContext) (Response, error) {
	selected, resp, done, err := e.resolveDataset(ctx, tc, tc.message, conversation.PendingMetadata)
	if done || err != nil {
		return resp, err
	}
	return e.metadataFor(ctx, tc, selected)
}

func (e *Engine) metadataFor(ctx context.Context, tc *turnContext, entry catalog.Entry) (Response, error) {
	text := fmt.Sprintf("**File: %s**\n\n%s", entry.DisplayName, entry.Summary)
	return e.respond(ctx, tc, text, nil, nil, nil)
}

func (e *Engine) statsFlow(ctx context.Context, tc *turnContext, question string) (Response, error) {
	selected, resp, done, err := e.resolveDataset(ctx, tc, tc.message, conversation.PendingStats)
	if done || err != nil {
		return resp, err
	}
	return e.runStats(ctx, tc, selected, question)
}

func (e *Engine) runStats(ctx context.Context, tc *turnContext, entry catalog.Entry, question string) (Response, error) {
	report, err := e.analyzer.Analyze(ctx, entry.DatasetID, question)
	if err != nil {
		e.logger.Error("statistical analysis failed", "dataset_id", entry.DatasetID, "error", err)
		return e.respond(ctx, tc, fmt.Sprintf("Error analyzing data: %v", err), nil, nil, nil)
	}

	vizConfig := &viz.Config{Type: viz.TypeInsights, Data: []map[string]any{reportAsMap(report)}}
	return e.respond(ctx, tc, report.Insights, nil, nil, vizConfig)
}

// reportAsMap flattens a stats report for the insights visualization payload.
func reportAsMap(report stats.Report) map[string]any {
	encoded, err := json.Marshal(report)
	if err != nil {
		return map[string]any{"insights_text": report.Insights}
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return map[string]any{"insights_text": report.Insights}
	}
	return asMap
}

func (e *Engine) edit(ctx context.Context, tc *turnContext) (Response, error) {
	selected, resp, done, err := e.resolveDataset(ctx, tc, tc.message, conversation.PendingDataQuery)
	if done || err != nil {
		return resp, err
	}

	sqlText, err := e.synth.GenerateUpdate(ctx, synth.EditRequest{
		Instruction:    tc.message,
		Table:          selected.DatasetID,
		CatalogSummary: selected.Summary,
		History:        chronological(tc.turns),
	})
	if err != nil {
		e.logger.Error("edit synthesis failed", "dataset_id", selected.DatasetID, "error", err)
		return e.respond(ctx, tc, fmt.Sprintf("Error editing data: %v", err), nil, nil, nil)
	}

	affected, err := e.executor.Update(ctx, selected.DatasetID, sqlText)
	if err != nil {
		if errors.Is(err, sqlexec.ErrUnsafeQuery) {
			observability.ObserveUnsafeQuery()
		}
		e.logger.Error("edit execution failed", "dataset_id", selected.DatasetID, "sql", sqlText, "error", err)
		return e.respond(ctx, tc, fmt.Sprintf("Error editing data: %v", err), nil, nil, nil)
	}

	message := fmt.Sprintf("Updated %d row(s) based on: '%s'", affected, tc.message)
	action := &conversation.Action{SQL: sqlText, DatasetID: selected.DatasetID, RowsAffected: affected}
	data := &Data{SQL: sqlText, DatasetID: selected.DatasetID, RowsAffected: affected}
	return e.respond(ctx, tc, message, action, data, nil)
}

func (e *Engine) dataQuery(ctx context.Context, tc *turnContext, question string) (Response, error) {
	selected, resp, done, err := e.resolveDataset(ctx, tc, tc.message, conversation.PendingDataQuery)
	if done || err != nil {
		return resp, err
	}
	return e.runDataQuery(ctx, tc, selected, question)
}

func (e *Engine) runDataQuery(ctx context.Context, tc *turnContext, entry catalog.Entry, question string) (Response, error) {
	catalogs := make([]synth.Catalog, len(tc.entries))
	for i, candidate := range tc.entries {
		catalogs[i] = synth.Catalog{DatasetID: candidate.DatasetID, Summary: candidate.Summary}
	}

	sqlText, err := e.synth.Generate(ctx, synth.Request{
		Question: question,
		Table:    entry.DatasetID,
		Catalogs: catalogs,
		History:  chronological(tc.turns),
	})
	if err != nil {
		e.logger.Error("sql synthesis failed", "dataset_id", entry.DatasetID, "error", err)
		return e.respond(ctx, tc, fmt.Sprintf("Error generating query: %v", err), nil, nil, nil)
	}

	result, err := e.executor.Query(ctx, entry.DatasetID, sqlText)
	if err != nil {
		if errors.Is(err, sqlexec.ErrUnsafeQuery) {
			observability.ObserveUnsafeQuery()
		}
		e.logger.Error("query execution failed", "dataset_id", entry.DatasetID, "sql", sqlText, "error", err)
		return e.respond(ctx, tc, fmt.Sprintf("Error executing query: %v", err), nil, nil, nil)
	}

	var vizConfig *viz.Config
	if cfg, ok := viz.Select(result.Rows, result.Columns, question); ok {
		vizConfig = &cfg
	}

	message := fmt.Sprintf("I found %d result(s) for your query.", len(result.Rows))
	action := &conversation.Action{SQL: sqlText, DatasetID: entry.DatasetID, RowCount: len(result.Rows)}
	data := &Data{Rows: result.Rows, Columns: result.Columns, SQL: sqlText, DatasetID: entry.DatasetID}
	return e.respond(ctx, tc, message, action, data, vizConfig)
}

// chartTypeChange re-executes the most recent data query and re-selects the
// presentation per the new phrasing.
func (e *Engine) chartTypeChange(ctx context.Context, tc *turnContext) (Response, error) {
	action, ok := conversation.LastAction(tc.turns)
	if !ok {
		return e.respond(ctx, tc, noPreviousQueryMessage, nil, nil, nil)
	}

	result, err := e.executor.Query(ctx, action.DatasetID, action.SQL)
	if err != nil {
		e.logger.Error("chart replay failed", "dataset_id", action.DatasetID, "sql", action.SQL, "error", err)
		return e.respond(ctx, tc, fmt.Sprintf("Error executing query: %v", err), nil, nil, nil)
	}

	cfg, ok := viz.Select(result.Rows, result.Columns, replayUtterance(tc.message, result))
	if !ok {
		return e.respond(ctx, tc, "The previous query returned no rows to visualize.", nil, nil, nil)
	}

	chartName := strings.ReplaceAll(string(cfg.Type), "_", " ")
	message := fmt.Sprintf("I found %d result(s). Showing in %s format.", len(result.Rows), chartName)
	newAction := &conversation.Action{SQL: action.SQL, DatasetID: action.DatasetID, RowCount: len(result.Rows), Revisualized: true}
	data := &Data{Rows: result.Rows, Columns: result.Columns, SQL: action.SQL, DatasetID: action.DatasetID}
	return e.respond(ctx, tc, message, newAction, data, &cfg)
}

// chronological reverses the most-recent-first history into the order the
// prompt builders expect.
func chronological(turns []conversation.Turn) []conversation.Turn {
	reversed := make([]conversation.Turn, len(turns))
	for i, turn := range turns {
		reversed[len(turns)-1-i] = turn
	}
	return reversed
}

var specificChartKeywords = []string{"bar chart", "line chart", "table", "bar graph", "line graph", "bars", "line"}

// replayUtterance decides what phrasing drives presentation selection on a
// chart replay. "different chart" without a named type cycles: time series
// flips to a table, two-column categorical data flips to a line chart, and
// everything else falls back to a table.
func replayUtterance(message string, result dataset.Result) string {
	lower := strings.ToLower(message)
	for _, keyword := range specificChartKeywords {
		if strings.Contains(lower, keyword) {
			return message
		}
	}
	if !strings.Contains(lower, "different") {
		return message
	}
	if len(result.Columns) == 2 && len(result.Rows) > 1 {
		if viz.HasDateColumn(result.Columns) {
			return "show as table"
		}
		return "show as line chart"
	}
	return "show as table"
}
