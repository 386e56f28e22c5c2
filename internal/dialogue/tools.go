package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/match"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/ticket"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

// Tool names exposed to the model.
const (
	toolSearchClient   = "buscarCliente"
	toolSearchService  = "buscarServicio"
	toolBriefQuestions = "obtenerPreguntasDelBrief"
	toolSaveTicket     = "guardarSolicitud"
)

// ToolExecutor runs the model's function calls against the catalog and the
// ticket writer. Results are plain maps so they serialize directly into
// genai.FunctionResponse payloads.
type ToolExecutor struct {
	store    catalog.Store
	tickets  TicketWriter
	notifier Notifier
	logger   *logging.Logger
}

// NewToolExecutor wires the tools. notifier may be nil.
func NewToolExecutor(store catalog.Store, tickets TicketWriter, notifier Notifier, logger *logging.Logger) *ToolExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	return &ToolExecutor{store: store, tickets: tickets, notifier: notifier, logger: logger}
}

// Execute dispatches one function call. Unknown tools and bad arguments come
// back as an error payload for the model, not a Go error; only backend
// failures propagate.
func (x *ToolExecutor) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	x.logger.Debug("dialogue: tool call", "tool", name)
	switch name {
	case toolSearchClient:
		return x.searchClient(ctx, args)
	case toolSearchService:
		return x.searchService(ctx, args)
	case toolBriefQuestions:
		return x.briefQuestions(ctx, args)
	case toolSaveTicket:
		return x.saveTicket(ctx, args)
	default:
		return map[string]any{"error": fmt.Sprintf("herramienta desconocida: %s", name)}, nil
	}
}

func (x *ToolExecutor) searchClient(ctx context.Context, args map[string]any) (map[string]any, error) {
	term := strArg(args, "nombre")
	if term == "" {
		return map[string]any{"error": "falta el parámetro nombre"}, nil
	}
	rows, err := x.store.SearchClients(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("dialogue: tool %s: %w", toolSearchClient, err)
	}
	out := make([]map[string]any, len(rows))
	for i, c := range rows {
		m := map[string]any{"id": c.ID, "cliente": c.Name}
		if c.Subdivision != nil {
			m["division_pais"] = *c.Subdivision
		}
		out[i] = m
	}
	return map[string]any{"encontrados": len(out), "clientes": out}, nil
}

func (x *ToolExecutor) searchService(ctx context.Context, args map[string]any) (map[string]any, error) {
	term := strArg(args, "descripcion")
	if term == "" {
		return map[string]any{"error": "falta el parámetro descripcion"}, nil
	}
	services, err := x.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialogue: tool %s: %w", toolSearchService, err)
	}
	ranked := match.Rank(term, serviceCandidates(services))
	if len(ranked) > maxServiceOptions {
		ranked = ranked[:maxServiceOptions]
	}
	out := make([]map[string]any, len(ranked))
	for i, r := range ranked {
		s := services[r.ID]
		out[i] = map[string]any{
			"id":             s.ID,
			"categoria":      s.Category,
			"subcategoria_1": s.Subcategory1,
			"subcategoria_2": s.Subcategory2,
			"puntaje":        r.Score,
		}
	}
	return map[string]any{"encontrados": len(out), "servicios": out}, nil
}

func (x *ToolExecutor) briefQuestions(ctx context.Context, args map[string]any) (map[string]any, error) {
	category := strArg(args, "categoria")
	sub1 := strArg(args, "subcategoria_1")
	sub2 := strArg(args, "subcategoria_2")
	questions, err := x.store.BriefQuestions(ctx, category, sub1, sub2)
	if err != nil {
		return nil, fmt.Errorf("dialogue: tool %s: %w", toolBriefQuestions, err)
	}
	out := make([]map[string]any, len(questions))
	for i, q := range questions {
		detail := ""
		if q.Detail != nil {
			detail = *q.Detail
		}
		out[i] = map[string]any{"pregunta": q.Text, "detalle": detail, "orden": q.Order}
	}
	return map[string]any{"total": len(out), "preguntas": out}, nil
}

func (x *ToolExecutor) saveTicket(ctx context.Context, args map[string]any) (map[string]any, error) {
	clientID, okClient := intArg(args, "cliente_id")
	serviceID, okService := intArg(args, "servicio_id")
	if !okClient || !okService {
		return map[string]any{"error": "cliente_id y servicio_id son obligatorios"}, nil
	}

	t := ticket.Ticket{
		ClientID:    clientID,
		ClientName:  strArg(args, "cliente_nombre"),
		ServiceID:   serviceID,
		ServicePath: strArg(args, "servicio_nombre"),
		Answers:     answersArg(args, "respuestas_brief"),
		UserID:      strArg(args, "user_id"),
	}
	if v := strArg(args, "subdivision"); v != "" {
		t.Subdivision = &v
	}
	if v := strArg(args, "link_diseno"); v != "" {
		t.DesignLink = &v
	}
	if v := strArg(args, "observaciones"); v != "" {
		t.Observations = &v
	}

	id, err := x.tickets.Create(ctx, t)
	if err != nil {
		x.logger.Error("dialogue: tool save failed", "error", err)
		return map[string]any{"exito": false, "error": err.Error()}, nil
	}
	if x.notifier != nil {
		x.notifier.TicketCreated(id, t)
	}
	return map[string]any{"exito": true, "ticket_id": id, "resumen": ticket.Summary(id, t)}, nil
}

func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// intArg accepts the numeric shapes JSON decoding can produce.
func intArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// answersArg tolerates both the structured list the prompt asks for and a
// loose map, since models drift between the two.
func answersArg(args map[string]any, key string) []ticket.Answer {
	switch v := args[key].(type) {
	case []any:
		var out []ticket.Answer
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, ticket.Answer{
				Question: strArg(m, "pregunta"),
				Answer:   strArg(m, "respuesta"),
			})
		}
		return out
	case map[string]any:
		out := make([]ticket.Answer, 0, len(v))
		for q, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, ticket.Answer{Question: q, Answer: s})
			}
		}
		return out
	}
	return nil
}
