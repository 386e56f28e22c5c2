package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// StatusPending is the estado every new solicitud starts in.
const StatusPending = "pendiente"

// Answer is one ordered question/answer pair persisted with the ticket.
type Answer struct {
	Question string `json:"pregunta"`
	Answer   string `json:"respuesta"`
}

// Ticket is a finalized solicitud ready to persist. Write-once.
type Ticket struct {
	ClientID     int64
	ClientName   string
	Subdivision  *string
	ServiceID    int64
	ServicePath  string
	Answers      []Answer
	DesignLink   *string
	Observations *string
	UserID       string
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Writer persists solicitudes.
type Writer struct {
	db     db
	logger *logging.Logger
	now    func() time.Time
}

// NewWriter creates a ticket writer.
func NewWriter(db db, logger *logging.Logger) *Writer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Writer{db: db, logger: logger, now: time.Now}
}

// NewID generates a date-prefixed ticket identifier, e.g. SOL-20260828-4821.
func (w *Writer) NewID() string {
	return fmt.Sprintf("SOL-%s-%04d", w.now().Format("20060102"), rand.Intn(10000))
}

// Create inserts the ticket and returns its identifier. A suffix collision on
// the unique ticket_id constraint is retried once with a fresh suffix.
func (w *Writer) Create(ctx context.Context, t Ticket) (string, error) {
	answers, err := json.Marshal(t.Answers)
	if err != nil {
		return "", fmt.Errorf("ticket: marshal answers: %w", err)
	}

	id := w.NewID()
	for attempt := 0; ; attempt++ {
		_, err = w.db.Exec(ctx,
			`INSERT INTO solicitudes
			   (ticket_id, cliente_id, servicio_id, respuestas_brief, link_diseno, observaciones, user_id, estado, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
			id, t.ClientID, t.ServiceID, answers, t.DesignLink, t.Observations, t.UserID, StatusPending)
		if err == nil {
			w.logger.Info("solicitud created", "ticket_id", id, "cliente_id", t.ClientID, "servicio_id", t.ServiceID)
			return id, nil
		}
		var pgErr *pgconn.PgError
		if attempt == 0 && errors.As(err, &pgErr) && pgErr.Code == "23505" {
			id = w.NewID()
			continue
		}
		return "", fmt.Errorf("ticket: insert solicitud: %w", err)
	}
}

// Summary renders the human-readable recap returned to the user after a
// successful finalization.
func Summary(id string, t Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket: %s\n", id)
	if t.Subdivision != nil && *t.Subdivision != "" {
		fmt.Fprintf(&b, "Cliente: %s (%s)\n", t.ClientName, *t.Subdivision)
	} else {
		fmt.Fprintf(&b, "Cliente: %s\n", t.ClientName)
	}
	fmt.Fprintf(&b, "Servicio: %s\n", t.ServicePath)
	if len(t.Answers) > 0 {
		b.WriteString("Brief:\n")
		for _, a := range t.Answers {
			fmt.Fprintf(&b, "- %s: %s\n", a.Question, a.Answer)
		}
	}
	if t.DesignLink != nil && *t.DesignLink != "" {
		fmt.Fprintf(&b, "Diseño: %s\n", *t.DesignLink)
	} else {
		b.WriteString("Diseño: sin diseño\n")
	}
	if t.Observations != nil && *t.Observations != "" {
		fmt.Fprintf(&b, "Observaciones: %s\n", *t.Observations)
	}
	return b.String()
}
