package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/ticket"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

const sendTimeout = 15 * time.Second

// Service emails the purchasing team when a solicitud is created. Sends run
// in the background: a failed notification is logged, never surfaced to the
// requester, and the ticket is already persisted either way.
type Service struct {
	email   EmailSender
	to      string
	toName  string
	logger  *logging.Logger
	wg      sync.WaitGroup
	timeout time.Duration
}

// NewService creates the notification service. email may be nil, which turns
// every dispatch into a no-op.
func NewService(email EmailSender, to, toName string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, to: to, toName: toName, logger: logger, timeout: sendTimeout}
}

// TicketCreated queues the "solicitud creada" email.
func (s *Service) TicketCreated(id string, t ticket.Ticket) {
	if s.email == nil || s.to == "" {
		s.logger.Debug("notify: email not configured, skipping", "ticket_id", id)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		msg := EmailMessage{
			To:      s.to,
			ToName:  s.toName,
			Subject: fmt.Sprintf("Nueva solicitud %s — %s", id, t.ClientName),
			Body:    ticketBody(id, t),
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: ticket email failed", "error", err, "ticket_id", id)
			return
		}
		s.logger.Info("notify: ticket email sent", "ticket_id", id)
	}()
}

// Wait blocks until in-flight sends finish. Called on shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func ticketBody(id string, t ticket.Ticket) string {
	return fmt.Sprintf("Se creó una nueva solicitud de compra.\n\n%s\nSolicitada por: %s\n",
		ticket.Summary(id, t), orUnknown(t.UserID))
}

func orUnknown(s string) string {
	if s == "" {
		return "usuario anónimo"
	}
	return s
}
