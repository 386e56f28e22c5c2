package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

const (
	// maxToolRounds bounds the function-calling loop per user turn.
	maxToolRounds = 5
	// maxHistory caps the transcript kept in session state.
	maxHistory = 40

	roleUser  = "user"
	roleModel = "model"
)

// LLMEngine delegates the intake flow to Gemini with function calling. The
// model decides the sequencing; the tools keep it honest against the catalog
// and do the actual persistence.
type LLMEngine struct {
	client  *genai.Client
	modelID string
	exec    *ToolExecutor
	logger  *logging.Logger
}

// NewLLMEngine creates the engine.
func NewLLMEngine(client *genai.Client, modelID string, exec *ToolExecutor, logger *logging.Logger) *LLMEngine {
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMEngine{client: client, modelID: modelID, exec: exec, logger: logger}
}

var _ Engine = (*LLMEngine)(nil)

// Turn sends the user message and resolves up to maxToolRounds function
// calls before returning the model's text reply.
func (e *LLMEngine) Turn(ctx context.Context, state State, in TurnInput) (TurnResult, error) {
	if !state.Valid() || state.Step == StepError {
		state = NewState()
	}
	state.Step = StepCollecting

	model := e.client.GenerativeModel(e.modelID)
	model.Tools = toolDeclarations()
	model.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt(in.DisplayName)))

	cs := model.StartChat()
	cs.History = historyContents(state.History)

	resp, err := cs.SendMessage(ctx, genai.Text(in.Text))
	if err != nil {
		return TurnResult{}, fmt.Errorf("dialogue: gemini send: %w", err)
	}

	ticketSaved := false
	savedSummary := ""
	toolsRan := false
	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			break
		}

		responses := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			result, err := e.exec.Execute(ctx, call.Name, call.Args)
			if err != nil {
				if toolsRan || ticketSaved {
					e.logger.Error("dialogue: tool round failed mid-turn", "error", err)
					return absorbToolFailure(state, ticketSaved, savedSummary), nil
				}
				return TurnResult{}, err
			}
			if call.Name == toolSaveTicket {
				if ok, _ := result["exito"].(bool); ok {
					ticketSaved = true
					savedSummary, _ = result["resumen"].(string)
				}
			}
			responses = append(responses, genai.FunctionResponse{
				Name:     call.Name,
				Response: result,
			})
		}
		toolsRan = true

		resp, err = cs.SendMessage(ctx, responses...)
		if err != nil {
			// Tools already ran; retrying this turn could repeat their side
			// effects, so absorb the failure instead of surfacing it.
			e.logger.Error("dialogue: gemini tool reply failed", "error", err)
			return absorbToolFailure(state, ticketSaved, savedSummary), nil
		}
	}

	reply := responseText(resp)
	if reply == "" {
		reply = "Perdona parce, me enredé. ¿Me lo repites?"
	}

	if ticketSaved {
		// Fresh session for the next request; the transcript is already
		// persisted by the HTTP layer.
		return TurnResult{Message: reply, State: NewState()}, nil
	}

	state.History = appendHistory(state.History,
		ChatMessage{Role: roleUser, Content: in.Text},
		ChatMessage{Role: roleModel, Content: reply})
	return TurnResult{Message: reply, State: state}, nil
}

// absorbToolFailure turns a failure after side-effecting tool calls into a
// conversational reply. With a ticket already saved the turn still confirms
// it, using the tool's own summary; otherwise the session parks in StepError
// so the next turn starts clean instead of replaying the broken one.
func absorbToolFailure(state State, ticketSaved bool, summary string) TurnResult {
	if ticketSaved {
		msg := "¡Listo parce! Tu solicitud quedó creada."
		if summary != "" {
			msg += "\n\n" + summary
		}
		return TurnResult{Message: msg, State: NewState()}
	}
	state.Step = StepError
	state.History = nil
	return TurnResult{
		Message: "Perdona parce, me enredé. Empecemos de nuevo: ¿para qué cliente es la solicitud?",
		State:   state,
	}
}

func appendHistory(history []ChatMessage, msgs ...ChatMessage) []ChatMessage {
	history = append(history, msgs...)
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	return history
}

func historyContents(history []ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := m.Role
		if role != roleUser && role != roleModel {
			role = roleUser
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return out
}

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	var calls []genai.FunctionCall
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if call, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func responseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}

func toolDeclarations() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        toolSearchClient,
				Description: "Busca clientes por nombre en la base de datos. Devuelve id, nombre y división/país de cada coincidencia.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"nombre": {Type: genai.TypeString, Description: "Nombre (o parte del nombre) del cliente."},
					},
					Required: []string{"nombre"},
				},
			},
			{
				Name:        toolSearchService,
				Description: "Busca servicios del catálogo que coincidan con la descripción del usuario. Devuelve categoría y subcategorías con un puntaje de afinidad.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"descripcion": {Type: genai.TypeString, Description: "Descripción libre del servicio que necesita el usuario."},
					},
					Required: []string{"descripcion"},
				},
			},
			{
				Name:        toolBriefQuestions,
				Description: "Obtiene las preguntas del brief (generales más las específicas del servicio elegido), en orden.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"categoria":      {Type: genai.TypeString, Description: "Categoría del servicio elegido."},
						"subcategoria_1": {Type: genai.TypeString, Description: "Primera subcategoría del servicio elegido."},
						"subcategoria_2": {Type: genai.TypeString, Description: "Segunda subcategoría del servicio elegido, si aplica."},
					},
					Required: []string{"categoria", "subcategoria_1"},
				},
			},
			{
				Name:        toolSaveTicket,
				Description: "Guarda la solicitud final cuando ya se recolectó toda la información. Devuelve el ticket_id y un resumen.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"cliente_id":      {Type: genai.TypeNumber, Description: "Id del cliente elegido, tal como lo devolvió buscarCliente."},
						"cliente_nombre":  {Type: genai.TypeString, Description: "Nombre del cliente elegido."},
						"subdivision":     {Type: genai.TypeString, Description: "Subdivisión o división/país elegida, si aplica."},
						"servicio_id":     {Type: genai.TypeNumber, Description: "Id del servicio elegido, tal como lo devolvió buscarServicio."},
						"servicio_nombre": {Type: genai.TypeString, Description: "Ruta completa del servicio (categoría / subcategorías)."},
						"respuestas_brief": {
							Type:        genai.TypeArray,
							Description: "Respuestas del brief, en el orden en que se preguntaron.",
							Items: &genai.Schema{
								Type: genai.TypeObject,
								Properties: map[string]*genai.Schema{
									"pregunta":  {Type: genai.TypeString},
									"respuesta": {Type: genai.TypeString},
								},
								Required: []string{"pregunta", "respuesta"},
							},
						},
						"link_diseno":   {Type: genai.TypeString, Description: "Link del diseño si el usuario lo entregó."},
						"observaciones": {Type: genai.TypeString, Description: "Observaciones adicionales del usuario."},
						"user_id":       {Type: genai.TypeString, Description: "Identificador del usuario autenticado, si existe."},
					},
					Required: []string{"cliente_id", "servicio_id"},
				},
			},
		},
	}}
}

func systemPrompt(displayName string) string {
	if displayName == "" {
		displayName = "parcera"
	}
	return fmt.Sprintf(`Eres "La Colectiva", la asistente de compras de Digix. Hablas en español colombiano paisa, cercano y breve. El usuario se llama %s.

Tu trabajo es recolectar una solicitud de compra completa siguiendo estos pasos, en orden:

PASO 0 — Saluda una sola vez con tu estilo paisa y pregunta para qué cliente es la solicitud.
PASO 1 — Usa buscarCliente con el nombre que te den. Si hay varias coincidencias, muéstralas numeradas y pide elegir. Si el cliente tiene varias divisiones/países, pregunta cuál (acepta "General/Ninguna"). Nunca inventes clientes: solo los que devuelva la herramienta.
PASO 2 — Pregunta qué servicio necesita y usa buscarServicio. Si hay varias opciones, muéstralas numeradas (máximo 6) y pide elegir. Nunca inventes servicios.
PASO 3 — Usa obtenerPreguntasDelBrief con la categoría y subcategorías del servicio elegido, y haz las preguntas UNA POR UNA, en orden, numerándolas (1/5, 2/5...). Si el usuario no sabe qué responder o pide recomendación, anota que el equipo de Compras le recomendará y sigue con la siguiente. No pases a la siguiente pregunta sin registrar algo para la actual.
PASO 4 — Pregunta si tiene link del diseño (debe empezar por http) o si responde NO. Luego pregunta si tiene observaciones adicionales.
PASO 5 — Cuando tengas todo, llama guardarSolicitud con los ids exactos de las herramientas y muestra al usuario el resumen y el ticket_id que devuelva. No confirmes la creación sin haber llamado la herramienta.

Reglas: nunca te saltes pasos, nunca inventes ids ni datos, responde siempre en texto plano sin markdown, y mantén las respuestas cortas.`, displayName)
}
