package dialogue

import (
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
)

// Step names a dialogue state. Disambiguation sub-modes are first-class steps
// so the state carries no implicit side-channel flags.
type Step string

const (
	StepInit               Step = "INICIAL"
	StepAwaitClient        Step = "ESPERANDO_CLIENTE"
	StepAwaitClientChoice  Step = "ESPERANDO_CLIENTE_AMBIGUO"
	StepAwaitSubdivision   Step = "ESPERANDO_SUBDIVISION"
	StepAwaitService       Step = "ESPERANDO_SERVICIO"
	StepAwaitServiceChoice Step = "ESPERANDO_SERVICIO_AMBIGUO"
	StepAwaitBrief         Step = "BRIEF_PENDIENTE"
	StepAwaitDesignLink    Step = "ESPERANDO_LINK_DISENO"
	StepAwaitObservations  Step = "ESPERANDO_OBSERVACIONES"

	// StepCollecting is the collapsed mid-flight step used by the LLM engine,
	// which delegates sequencing to the model.
	StepCollecting Step = "RECOLECTANDO_INFORMACION"
	// StepError absorbs unrecoverable LLM-engine failures until a reset.
	StepError Step = "ERROR"
)

var knownSteps = map[Step]struct{}{
	StepInit: {}, StepAwaitClient: {}, StepAwaitClientChoice: {},
	StepAwaitSubdivision: {}, StepAwaitService: {}, StepAwaitServiceChoice: {},
	StepAwaitBrief: {}, StepAwaitDesignLink: {}, StepAwaitObservations: {},
	StepCollecting: {}, StepError: {},
}

// Known reports whether s is a step this build understands. Unknown or
// malformed persisted states reset to StepInit rather than failing the turn.
func (s Step) Known() bool {
	_, ok := knownSteps[s]
	return ok
}

// Answer is one recorded question/answer pair, in asking order.
type Answer struct {
	Question string `json:"pregunta"`
	Answer   string `json:"respuesta"`
}

// ChatMessage is one prior turn kept for the LLM engine.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "model"
	Content string `json:"content"`
}

// State is the per-session dialogue state. Only the fields valid for the
// current Step are populated; transitions clear what no longer applies.
type State struct {
	Step Step `json:"step"`

	// Client selection.
	ClientID    int64            `json:"cliente_id,omitempty"`
	ClientName  string           `json:"cliente_nombre,omitempty"`
	Subdivision *string          `json:"subdivision,omitempty"`
	Candidates  []catalog.Client `json:"candidatos_cliente,omitempty"`

	// Service selection.
	Service        *catalog.Service  `json:"servicio,omitempty"`
	ServiceOptions []catalog.Service `json:"opciones_servicio,omitempty"`

	// Brief collection. QuestionIndex never exceeds len(Questions).
	Questions     []catalog.BriefQuestion `json:"preguntas,omitempty"`
	QuestionIndex int                     `json:"indice_pregunta,omitempty"`
	Answers       []Answer                `json:"respuestas,omitempty"`

	// Wrap-up.
	HasDesign    *bool   `json:"tiene_diseno,omitempty"`
	DesignLink   *string `json:"link_diseno,omitempty"`
	Observations *string `json:"observaciones,omitempty"`

	// LLM engine conversation history.
	History []ChatMessage `json:"historial,omitempty"`
}

// NewState returns the initial session state.
func NewState() State {
	return State{Step: StepInit}
}

// Valid reports whether the state is internally coherent. A false result is
// treated as recoverable corruption: the engine resets and re-greets.
func (s State) Valid() bool {
	if !s.Step.Known() {
		return false
	}
	if s.QuestionIndex < 0 || s.QuestionIndex > len(s.Questions) {
		return false
	}
	if s.Step == StepAwaitBrief && (s.Service == nil || s.QuestionIndex >= len(s.Questions)) {
		return false
	}
	if s.Step == StepAwaitServiceChoice && len(s.ServiceOptions) == 0 {
		return false
	}
	if (s.Step == StepAwaitClientChoice || s.Step == StepAwaitSubdivision) && len(s.Candidates) == 0 {
		return false
	}
	return true
}
