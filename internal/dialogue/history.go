package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// TranscriptEntry is one persisted chat line, newest last.
type TranscriptEntry struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type historyDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// HistoryStore keeps the durable per-session transcript in Postgres. It is
// write-behind: a failed append is logged, never surfaced to the user turn.
type HistoryStore struct {
	db     historyDB
	logger *logging.Logger
}

// NewHistoryStore creates the store.
func NewHistoryStore(db historyDB, logger *logging.Logger) *HistoryStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &HistoryStore{db: db, logger: logger}
}

// Append records a user/model exchange. Errors are logged and swallowed.
func (h *HistoryStore) Append(ctx context.Context, sessionKey string, msgs ...ChatMessage) {
	for _, m := range msgs {
		_, err := h.db.Exec(ctx,
			`INSERT INTO chat_messages (session_key, role, content, created_at) VALUES ($1, $2, $3, now())`,
			sessionKey, m.Role, m.Content)
		if err != nil {
			h.logger.Warn("dialogue: transcript append failed", "error", err, "session", sessionKey)
			return
		}
	}
}

// List returns the most recent limit entries in chronological order.
func (h *HistoryStore) List(ctx context.Context, sessionKey string, limit int) ([]TranscriptEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.Query(ctx,
		`SELECT id, role, content, created_at
		   FROM (SELECT id, role, content, created_at
		           FROM chat_messages
		          WHERE session_key = $1
		          ORDER BY id DESC
		          LIMIT $2) recent
		  ORDER BY id ASC`,
		sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("dialogue: list transcript: %w", err)
	}
	defer rows.Close()

	var out []TranscriptEntry
	for rows.Next() {
		var e TranscriptEntry
		if err := rows.Scan(&e.ID, &e.Role, &e.Content, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("dialogue: scan transcript: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialogue: list transcript: %w", err)
	}
	return out, nil
}

// Clear deletes the session transcript and returns how many lines went away.
func (h *HistoryStore) Clear(ctx context.Context, sessionKey string) (int64, error) {
	tag, err := h.db.Exec(ctx, `DELETE FROM chat_messages WHERE session_key = $1`, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("dialogue: clear transcript: %w", err)
	}
	return tag.RowsAffected(), nil
}
