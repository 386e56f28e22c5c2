package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// Event types recorded in auth_events.
const (
	EventLogin      = "login"
	EventTokenError = "token_error"
)

// Event is one recorded authentication event.
type Event struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EventsRepository persists the auth audit trail.
type EventsRepository struct {
	db     db
	logger *logging.Logger
}

// NewEventsRepository creates the repository.
func NewEventsRepository(db db, logger *logging.Logger) *EventsRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventsRepository{db: db, logger: logger}
}

// Insert records an event. Auditing must never break a request, so failures
// are logged and swallowed.
func (r *EventsRepository) Insert(ctx context.Context, userID, email, eventType, detail string) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO auth_events (user_id, email, event_type, detail, created_at) VALUES ($1, $2, $3, $4, now())`,
		userID, email, eventType, detail)
	if err != nil {
		r.logger.Warn("auth: event insert failed", "error", err, "event_type", eventType)
	}
}

// List returns the most recent events, newest first.
func (r *EventsRepository) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, email, event_type, detail, created_at
		   FROM auth_events
		  ORDER BY id DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("auth: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &e.EventType, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("auth: scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: list events: %w", err)
	}
	return out, nil
}
