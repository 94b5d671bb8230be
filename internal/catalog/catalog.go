package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/tabletalk/tabletalk/internal/conversation"
)

var ErrNotFound = errors.New("catalog: not found")

// Repository persists dataset catalog entries and chat sessions. The catalog
// row is the single source of truth for a dataset's summary; the object store
// keeps only the raw upload and the parquet archive.
type Repository interface {
	HealthCheck(ctx context.Context) error

	CreateEntry(ctx context.Context, in CreateEntryInput) (Entry, error)
	GetEntry(ctx context.Context, datasetID string) (Entry, error)
	ListEntries(ctx context.Context, userID string) ([]Entry, error)
	DeleteEntry(ctx context.Context, datasetID string) (bool, error)

	CreateSession(ctx context.Context, sessionID, userID string) (conversation.Session, error)
	GetSession(ctx context.Context, sessionID string) (conversation.Session, error)
	ListSessions(ctx context.Context, userID string) ([]conversation.Session, error)
	AppendTurn(ctx context.Context, in AppendTurnInput) (conversation.Turn, error)
	// RecentTurns returns up to limit turns, most recent first.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error)
	// SessionTurns returns all turns in chronological order.
	SessionTurns(ctx context.Context, sessionID string) ([]conversation.Turn, error)
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Entry describes one uploaded dataset: where it lives in the query engine
// (DatasetID doubles as the table name) and the generated summary the
// resolver scores utterances against.
type Entry struct {
	DatasetID   string    `json:"dataset_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Summary     string    `json:"summary"`
	Columns     []Column  `json:"columns"`
	RowCount    int64     `json:"row_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateEntryInput struct {
	DatasetID   string
	UserID      string
	DisplayName string
	Summary     string
	Columns     []Column
	RowCount    int64
}

type AppendTurnInput struct {
	SessionID string
	Role      conversation.Role
	Content   string
	Action    *conversation.Action
}
