// Package conversation holds the chat turn model and the follow-up state
// tracker. State is reconstructed from persisted turns on every request; the
// package keeps nothing in memory between requests.
package conversation

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Action records the structured side of an assistant turn: the SQL that was
// executed and what it touched. Turns without a data action carry no Action.
type Action struct {
	SQL          string `json:"sql,omitempty"`
	DatasetID    string `json:"dataset_id,omitempty"`
	RowCount     int    `json:"row_count,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	Revisualized bool   `json:"revisualized,omitempty"`
}

type Turn struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Action    *Action   `json:"action,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	ID        string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// LastAction returns the most recent assistant action carrying executed SQL.
// turns are ordered most recent first.
func LastAction(turns []Turn) (Action, bool) {
	for _, turn := range turns {
		if turn.Role != RoleAssistant || turn.Action == nil {
			continue
		}
		if turn.Action.SQL != "" {
			return *turn.Action, true
		}
	}
	return Action{}, false
}
