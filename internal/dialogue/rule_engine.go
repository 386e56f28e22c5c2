package dialogue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/match"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/observability/metrics"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/ticket"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

const (
	maxServiceOptions = 6
	maxSuggestions    = 5
)

// RuleEngine is the deterministic intake flow. Every transition is explicit;
// the only free-text interpretation is the fuzzy matcher over the catalog.
type RuleEngine struct {
	store    catalog.Store
	tickets  TicketWriter
	notifier Notifier
	metrics  *metrics.DialogueMetrics
	logger   *logging.Logger
}

// NewRuleEngine creates the engine. notifier and m may be nil.
func NewRuleEngine(store catalog.Store, tickets TicketWriter, notifier Notifier, m *metrics.DialogueMetrics, logger *logging.Logger) *RuleEngine {
	if logger == nil {
		logger = logging.Default()
	}
	return &RuleEngine{store: store, tickets: tickets, notifier: notifier, metrics: m, logger: logger}
}

var _ Engine = (*RuleEngine)(nil)

// Turn advances the conversation. Backend failures return an error with the
// state unchanged so the caller does not persist a half-applied transition;
// user mistakes produce a re-prompt, never an error.
func (e *RuleEngine) Turn(ctx context.Context, state State, in TurnInput) (TurnResult, error) {
	if !state.Valid() {
		e.logger.Warn("dialogue: discarding invalid session state", "step", string(state.Step))
		state = NewState()
	}

	text := strings.TrimSpace(in.Text)

	switch state.Step {
	case StepInit:
		next := NewState()
		next.Step = StepAwaitClient
		return TurnResult{Message: msgGreeting, State: next}, nil
	case StepAwaitClient:
		return e.collectClient(ctx, state, text)
	case StepAwaitClientChoice:
		return e.chooseClient(ctx, state, text)
	case StepAwaitSubdivision:
		return e.chooseSubdivision(ctx, state, text)
	case StepAwaitService:
		return e.collectService(ctx, state, text)
	case StepAwaitServiceChoice:
		return e.chooseService(ctx, state, text)
	case StepAwaitBrief:
		return e.collectBriefAnswer(ctx, state, text, in)
	case StepAwaitDesignLink:
		return e.collectDesignLink(state, text)
	case StepAwaitObservations:
		return e.collectObservations(ctx, state, text, in)
	default:
		// Steps owned by the LLM engine. Restart cleanly rather than guess.
		next := NewState()
		next.Step = StepAwaitClient
		return TurnResult{Message: msgGreeting, State: next}, nil
	}
}

func (e *RuleEngine) collectClient(ctx context.Context, state State, text string) (TurnResult, error) {
	if isSmalltalk(text) {
		return TurnResult{Message: msgSmalltalk("¿para qué cliente es esta solicitud?"), State: state}, nil
	}
	if len([]rune(text)) < 2 {
		return TurnResult{Message: msgClientTooShort, State: state}, nil
	}

	rows, err := e.store.SearchClients(ctx, text)
	if err != nil {
		return TurnResult{}, fmt.Errorf("dialogue: search clients: %w", err)
	}

	names := distinctClientNames(rows)
	switch len(names) {
	case 0:
		e.metrics.ObserveMatch("cliente", "sin_resultado")
		suggestions, err := e.clientSuggestions(ctx)
		if err != nil {
			e.logger.Warn("dialogue: suggestion lookup failed", "error", err)
		}
		return TurnResult{Message: msgClientNotFound(text, suggestions), State: state}, nil
	case 1:
		e.metrics.ObserveMatch("cliente", "unico")
		return e.clientNamed(state, rows, names[0])
	default:
		e.metrics.ObserveMatch("cliente", "ambiguo")
		state.Candidates = rows
		state.Step = StepAwaitClientChoice
		return TurnResult{Message: msgClientChoices(text, names), State: state}, nil
	}
}

func (e *RuleEngine) chooseClient(ctx context.Context, state State, text string) (TurnResult, error) {
	names := distinctClientNames(state.Candidates)

	var chosen string
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(names) {
		chosen = names[n-1]
	} else {
		norm := match.Normalize(text)
		for _, name := range names {
			if strings.Contains(match.Normalize(name), norm) && norm != "" {
				chosen = name
				break
			}
		}
	}
	if chosen == "" {
		return TurnResult{Message: msgClientChoices("tu búsqueda", names), State: state}, nil
	}
	return e.clientNamed(state, state.Candidates, chosen)
}

// clientNamed locks in a client name and either asks for the subdivision or
// moves straight to service selection.
func (e *RuleEngine) clientNamed(state State, rows []catalog.Client, name string) (TurnResult, error) {
	var matched []catalog.Client
	for _, c := range rows {
		if c.Name == name {
			matched = append(matched, c)
		}
	}

	// Auto-select only when no row carries a subdivision; a single named
	// subdivision is still the user's call (they may want none at all).
	subs := subdivisions(matched)
	if len(subs) >= 1 {
		state.ClientName = name
		state.Candidates = matched
		state.Step = StepAwaitSubdivision
		return TurnResult{Message: msgSubdivisions(name, subs), State: state}, nil
	}
	return e.clientConfirmed(state, matched[0].ID, name, nil), nil
}

func (e *RuleEngine) chooseSubdivision(ctx context.Context, state State, text string) (TurnResult, error) {
	if isGeneral(text) {
		// Prefer the row with no subdivision; otherwise any row of the client
		// works, the subdivision is simply left unset on the ticket.
		chosen := state.Candidates[0]
		for _, c := range state.Candidates {
			if c.Subdivision == nil || *c.Subdivision == "" {
				chosen = c
				break
			}
		}
		return e.clientConfirmed(state, chosen.ID, state.ClientName, nil), nil
	}

	norm := match.Normalize(text)
	for _, c := range state.Candidates {
		if c.Subdivision == nil || *c.Subdivision == "" {
			continue
		}
		if norm != "" && strings.Contains(match.Normalize(*c.Subdivision), norm) {
			return e.clientConfirmed(state, c.ID, state.ClientName, c.Subdivision), nil
		}
	}
	return TurnResult{Message: msgSubdivisionRetry(subdivisions(state.Candidates)), State: state}, nil
}

func (e *RuleEngine) clientConfirmed(state State, id int64, name string, sub *string) TurnResult {
	state.ClientID = id
	state.ClientName = name
	state.Subdivision = sub
	state.Candidates = nil
	state.Step = StepAwaitService
	return TurnResult{Message: msgClientConfirmed(name), State: state}
}

func (e *RuleEngine) collectService(ctx context.Context, state State, text string) (TurnResult, error) {
	if isSmalltalk(text) {
		return TurnResult{Message: msgSmalltalk("¿qué servicio necesitas cotizar?"), State: state}, nil
	}

	services, err := e.store.ListServices(ctx)
	if err != nil {
		return TurnResult{}, fmt.Errorf("dialogue: list services: %w", err)
	}

	ranked := match.Rank(text, serviceCandidates(services))
	switch {
	case len(ranked) == 0:
		e.metrics.ObserveMatch("servicio", "sin_resultado")
		categories, err := e.store.ListCategories(ctx)
		if err != nil {
			e.logger.Warn("dialogue: category lookup failed", "error", err)
		}
		return TurnResult{Message: msgServiceNotFound(text, categories), State: state}, nil
	case len(ranked) == 1:
		e.metrics.ObserveMatch("servicio", "unico")
		return e.serviceSelected(ctx, state, services[ranked[0].ID])
	default:
		e.metrics.ObserveMatch("servicio", "ambiguo")
		options := make([]catalog.Service, 0, maxServiceOptions)
		for _, r := range ranked {
			options = append(options, services[r.ID])
			if len(options) == maxServiceOptions {
				break
			}
		}
		state.ServiceOptions = options
		state.Step = StepAwaitServiceChoice
		return TurnResult{Message: msgServiceChoices(text, options), State: state}, nil
	}
}

func (e *RuleEngine) chooseService(ctx context.Context, state State, text string) (TurnResult, error) {
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(state.ServiceOptions) {
		return e.serviceSelected(ctx, state, state.ServiceOptions[n-1])
	}
	norm := match.Normalize(text)
	for _, opt := range state.ServiceOptions {
		if norm != "" && match.Normalize(opt.Path()) == norm {
			return e.serviceSelected(ctx, state, opt)
		}
	}
	return TurnResult{Message: msgServiceReprompt(state.ServiceOptions), State: state}, nil
}

func (e *RuleEngine) serviceSelected(ctx context.Context, state State, svc catalog.Service) (TurnResult, error) {
	// Snapshot ids can be stale; re-resolve against the database before the
	// id ends up on a ticket.
	id, err := e.store.ResolveServiceID(ctx, svc.Category, svc.Subcategory1, svc.Subcategory2)
	if err != nil {
		return TurnResult{}, fmt.Errorf("dialogue: resolve service: %w", err)
	}
	svc.ID = id

	questions, err := e.store.BriefQuestions(ctx, svc.Category, svc.Subcategory1, svc.Subcategory2)
	if err != nil {
		return TurnResult{}, fmt.Errorf("dialogue: brief questions: %w", err)
	}

	state.Service = &svc
	state.ServiceOptions = nil
	state.Questions = questions
	state.QuestionIndex = 0
	state.Answers = nil

	if len(questions) == 0 {
		state.Step = StepAwaitDesignLink
		msg := msgServiceSelected(svc) + "\n\n" + msgNoSpecificQuestions + " " + msgDesignPrompt
		return TurnResult{Message: msg, State: state}, nil
	}

	state.Step = StepAwaitBrief
	msg := msgServiceSelected(svc) + "\n\n" + msgBriefQuestion(questions[0], 0, len(questions))
	return TurnResult{Message: msg, State: state}, nil
}

func (e *RuleEngine) collectBriefAnswer(ctx context.Context, state State, text string, in TurnInput) (TurnResult, error) {
	q := state.Questions[state.QuestionIndex]

	var ack string
	answer := text
	switch {
	case asksAdvice(text):
		answer = answerAdviseNote
		ack = msgAdviseAck
	case asksExplanation(text):
		answer = answerExplainNote
		ack = msgExplainAck
	case text == "":
		return TurnResult{Message: msgBriefQuestion(q, state.QuestionIndex, len(state.Questions)), State: state}, nil
	}

	state.Answers = append(state.Answers, Answer{Question: q.Text, Answer: answer})
	state.QuestionIndex++

	if state.QuestionIndex < len(state.Questions) {
		next := state.Questions[state.QuestionIndex]
		return TurnResult{Message: ack + msgBriefQuestion(next, state.QuestionIndex, len(state.Questions)), State: state}, nil
	}

	state.Step = StepAwaitDesignLink
	return TurnResult{Message: ack + msgDesignPrompt, State: state}, nil
}

func (e *RuleEngine) collectDesignLink(state State, text string) (TurnResult, error) {
	switch {
	case isNo(text):
		has := false
		state.HasDesign = &has
	case isLink(text):
		has := true
		link := text
		state.HasDesign = &has
		state.DesignLink = &link
	default:
		return TurnResult{Message: msgDesignReprompt, State: state}, nil
	}
	state.Step = StepAwaitObservations
	return TurnResult{Message: msgObservationsPrompt, State: state}, nil
}

func (e *RuleEngine) collectObservations(ctx context.Context, state State, text string, in TurnInput) (TurnResult, error) {
	switch {
	case isYes(text):
		// They said yes but didn't write the observation yet.
		return TurnResult{Message: msgObservationsFollow, State: state}, nil
	case isNo(text) || text == "":
		// No observations.
	default:
		obs := text
		state.Observations = &obs
	}
	return e.finalize(ctx, state, in), nil
}

// finalize persists the ticket and resets the session. On failure the reply
// apologizes and the session still resets; a retry starts a fresh intake.
func (e *RuleEngine) finalize(ctx context.Context, state State, in TurnInput) TurnResult {
	t := ticket.Ticket{
		ClientID:     state.ClientID,
		ClientName:   state.ClientName,
		Subdivision:  state.Subdivision,
		ServiceID:    state.Service.ID,
		ServicePath:  state.Service.Path(),
		Answers:      toTicketAnswers(state.Answers),
		DesignLink:   state.DesignLink,
		Observations: state.Observations,
		UserID:       in.UserID,
	}

	id, err := e.tickets.Create(ctx, t)
	if err != nil {
		e.metrics.ObserveTicket("error")
		e.logger.Error("dialogue: ticket create failed", "error", err, "cliente_id", t.ClientID)
		return TurnResult{Message: msgTicketFailed(err), State: NewState()}
	}
	e.metrics.ObserveTicket("ok")

	if e.notifier != nil {
		e.notifier.TicketCreated(id, t)
	}
	return TurnResult{Message: msgTicketCreated(ticket.Summary(id, t)), State: NewState()}
}

func (e *RuleEngine) clientSuggestions(ctx context.Context) ([]string, error) {
	clients, err := e.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	names := distinctClientNames(clients)
	if len(names) > maxSuggestions {
		names = names[:maxSuggestions]
	}
	return names, nil
}

// distinctClientNames keeps first-seen order; one client spans several rows
// when it has subdivisions.
func distinctClientNames(rows []catalog.Client) []string {
	seen := make(map[string]struct{}, len(rows))
	var names []string
	for _, c := range rows {
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	return names
}

func subdivisions(rows []catalog.Client) []string {
	seen := make(map[string]struct{}, len(rows))
	var subs []string
	for _, c := range rows {
		if c.Subdivision == nil || *c.Subdivision == "" {
			continue
		}
		if _, ok := seen[*c.Subdivision]; ok {
			continue
		}
		seen[*c.Subdivision] = struct{}{}
		subs = append(subs, *c.Subdivision)
	}
	return subs
}

// serviceCandidates adapts the taxonomy for the fuzzy matcher. Candidate IDs
// are slice indexes, not database ids. The leaf appears twice so it weighs
// double in score ties.
func serviceCandidates(services []catalog.Service) []match.Candidate {
	out := make([]match.Candidate, len(services))
	for i, s := range services {
		leaf := match.Normalize(s.Subcategory2)
		out[i] = match.Candidate{
			ID:    int64(i),
			Label: s.Path(),
			Searchable: []string{
				match.Normalize(s.Category),
				match.Normalize(s.Subcategory1),
				leaf,
				leaf,
			},
		}
	}
	return out
}

func toTicketAnswers(answers []Answer) []ticket.Answer {
	out := make([]ticket.Answer, len(answers))
	for i, a := range answers {
		out[i] = ticket.Answer{Question: a.Question, Answer: a.Answer}
	}
	return out
}
