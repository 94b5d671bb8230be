package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/conversation"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateEntry(ctx context.Context, in catalog.CreateEntryInput) (catalog.Entry, error) {
	columnsJSON, err := json.Marshal(in.Columns)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("encode catalog columns: %w", err)
	}

	query := `
INSERT INTO dataset_catalog (dataset_id, user_id, display_name, summary, columns_json, row_count)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
RETURNING created_at`

	entry := catalog.Entry{
		DatasetID:   in.DatasetID,
		UserID:      in.UserID,
		DisplayName: in.DisplayName,
		Summary:     in.Summary,
		Columns:     in.Columns,
		RowCount:    in.RowCount,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.DatasetID, in.UserID, in.DisplayName, in.Summary, string(columnsJSON), in.RowCount,
	).Scan(&entry.CreatedAt); err != nil {
		return catalog.Entry{}, fmt.Errorf("create catalog entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) GetEntry(ctx context.Context, datasetID string) (catalog.Entry, error) {
	query := `
SELECT dataset_id, user_id, display_name, summary, columns_json, row_count, created_at
FROM dataset_catalog
WHERE dataset_id = $1`

	var entry catalog.Entry
	var columnsJSON []byte
	if err := r.db.QueryRowContext(ctx, query, datasetID).Scan(
		&entry.DatasetID,
		&entry.UserID,
		&entry.DisplayName,
		&entry.Summary,
		&columnsJSON,
		&entry.RowCount,
		&entry.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Entry{}, catalog.ErrNotFound
		}
		return catalog.Entry{}, fmt.Errorf("get catalog entry: %w", err)
	}
	if err := json.Unmarshal(columnsJSON, &entry.Columns); err != nil {
		return catalog.Entry{}, fmt.Errorf("decode catalog columns: %w", err)
	}
	return entry, nil
}

func (r *Repository) ListEntries(ctx context.Context, userID string) ([]catalog.Entry, error) {
	query := `
SELECT dataset_id, user_id, display_name, summary, columns_json, row_count, created_at
FROM dataset_catalog
WHERE user_id = $1
ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list catalog entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]catalog.Entry, 0)
	for rows.Next() {
		var entry catalog.Entry
		var columnsJSON []byte
		if err := rows.Scan(
			&entry.DatasetID,
			&entry.UserID,
			&entry.DisplayName,
			&entry.Summary,
			&columnsJSON,
			&entry.RowCount,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		if err := json.Unmarshal(columnsJSON, &entry.Columns); err != nil {
			return nil, fmt.Errorf("decode catalog columns: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog rows: %w", err)
	}
	return entries, nil
}

func (r *Repository) DeleteEntry(ctx context.Context, datasetID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM dataset_catalog
WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return false, fmt.Errorf("delete catalog entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete catalog entry rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) CreateSession(ctx context.Context, sessionID, userID string) (conversation.Session, error) {
	query := `
INSERT INTO chat_session (session_id, user_id)
VALUES ($1, $2)
RETURNING created_at`

	session := conversation.Session{ID: sessionID, UserID: userID}
	if err := r.db.QueryRowContext(ctx, query, sessionID, userID).Scan(&session.CreatedAt); err != nil {
		return conversation.Session{}, fmt.Errorf("create chat session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (conversation.Session, error) {
	query := `
SELECT session_id, user_id, created_at
FROM chat_session
WHERE session_id = $1`

	var session conversation.Session
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversation.Session{}, catalog.ErrNotFound
		}
		return conversation.Session{}, fmt.Errorf("get chat session: %w", err)
	}
	return session, nil
}

func (r *Repository) ListSessions(ctx context.Context, userID string) ([]conversation.Session, error) {
	query := `
SELECT session_id, user_id, created_at
FROM chat_session
WHERE user_id = $1
ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]conversation.Session, 0)
	for rows.Next() {
		var session conversation.Session
		if err := rows.Scan(&session.ID, &session.UserID, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat session rows: %w", err)
	}
	return sessions, nil
}

func (r *Repository) AppendTurn(ctx context.Context, in catalog.AppendTurnInput) (conversation.Turn, error) {
	var actionJSON any
	if in.Action != nil {
		encoded, err := json.Marshal(in.Action)
		if err != nil {
			return conversation.Turn{}, fmt.Errorf("encode turn action: %w", err)
		}
		actionJSON = string(encoded)
	}

	query := `
INSERT INTO chat_turn (session_id, role, content, action_json)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING turn_id, created_at`

	turn := conversation.Turn{
		SessionID: in.SessionID,
		Role:      in.Role,
		Content:   in.Content,
		Action:    in.Action,
	}
	if err := r.db.QueryRowContext(ctx, query, in.SessionID, string(in.Role), in.Content, actionJSON).Scan(
		&turn.ID,
		&turn.CreatedAt,
	); err != nil {
		return conversation.Turn{}, fmt.Errorf("append chat turn: %w", err)
	}
	return turn, nil
}

func (r *Repository) RecentTurns(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
SELECT turn_id, session_id, role, content, action_json, created_at
FROM chat_turn
WHERE session_id = $1
ORDER BY turn_id DESC
LIMIT $2`

	return r.queryTurns(ctx, query, sessionID, limit)
}

func (r *Repository) SessionTurns(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	query := `
SELECT turn_id, session_id, role, content, action_json, created_at
FROM chat_turn
WHERE session_id = $1
ORDER BY turn_id ASC`

	return r.queryTurns(ctx, query, sessionID)
}

func (r *Repository) queryTurns(ctx context.Context, query string, args ...any) ([]conversation.Turn, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]conversation.Turn, 0)
	for rows.Next() {
		var turn conversation.Turn
		var role string
		var actionJSON sql.NullString
		if err := rows.Scan(
			&turn.ID,
			&turn.SessionID,
			&role,
			&turn.Content,
			&actionJSON,
			&turn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat turn row: %w", err)
		}
		turn.Role = conversation.Role(role)
		if actionJSON.Valid && actionJSON.String != "" {
			var action conversation.Action
			if err := json.Unmarshal([]byte(actionJSON.String), &action); err != nil {
				return nil, fmt.Errorf("decode turn action: %w", err)
			}
			turn.Action = &action
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat turn rows: %w", err)
	}
	return turns, nil
}
