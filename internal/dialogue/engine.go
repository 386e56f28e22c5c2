// Package dialogue implements the conversational intake flow that walks a
// requester from greeting to a persisted purchase request. Two engines share
// the same session store and catalog: a deterministic state machine
// (RuleEngine) and a Gemini function-calling orchestrator (LLMEngine).
package dialogue

import (
	"context"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/ticket"
)

// TurnInput is a single user message plus the identity attached to the
// session, as resolved by the HTTP layer.
type TurnInput struct {
	Text        string
	UserID      string
	DisplayName string
}

// TurnResult carries the assistant reply and the session state after the
// turn. Engines return the state so callers can persist it atomically with
// the reply.
type TurnResult struct {
	Message string
	State   State
}

// Engine advances a conversation by one turn. Implementations must not
// persist state themselves; the caller owns the session store write.
type Engine interface {
	Turn(ctx context.Context, state State, in TurnInput) (TurnResult, error)
}

// TicketWriter is the slice of the ticket package the engines need.
type TicketWriter interface {
	Create(ctx context.Context, t ticket.Ticket) (string, error)
}

// Notifier receives fire-and-forget ticket notifications. Implementations
// must be safe to call from a goroutine after the HTTP response is written.
type Notifier interface {
	TicketCreated(id string, t ticket.Ticket)
}
