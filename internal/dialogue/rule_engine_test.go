package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/match"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/observability/metrics"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/ticket"
)

func strptr(s string) *string { return &s }

var (
	serviceLona = catalog.Service{ID: 10, Category: "Impresión", Subcategory1: "Gran formato", Subcategory2: "Lona"}

	questionsGeneral = []catalog.BriefQuestion{
		{ID: 1, Text: "¿Cuántas unidades necesitas?", Order: 1},
		{ID: 2, Text: "¿Para qué fecha lo necesitas?", Detail: strptr("Formato día/mes/año."), Order: 2},
	}
)

// fakeStore is an in-memory catalog.Store used by the engine tests.
type fakeStore struct {
	clients   []catalog.Client
	services  []catalog.Service
	questions []catalog.BriefQuestion
	err       error
}

func (f *fakeStore) SearchClients(_ context.Context, term string) ([]catalog.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	norm := match.Normalize(term)
	var out []catalog.Client
	for _, c := range f.clients {
		if norm != "" && strings.Contains(match.Normalize(c.Name), norm) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) ListClients(context.Context) ([]catalog.Client, error) {
	return f.clients, f.err
}

func (f *fakeStore) ListServices(context.Context) ([]catalog.Service, error) {
	return f.services, f.err
}

func (f *fakeStore) ListCategories(context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	var cats []string
	for _, s := range f.services {
		if _, ok := seen[s.Category]; ok {
			continue
		}
		seen[s.Category] = struct{}{}
		cats = append(cats, s.Category)
	}
	return cats, f.err
}

func (f *fakeStore) ResolveServiceID(_ context.Context, category, sub1, sub2 string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	for _, s := range f.services {
		if s.Category == category && s.Subcategory1 == sub1 && s.Subcategory2 == sub2 {
			return s.ID, nil
		}
	}
	return 0, errors.New("service not found")
}

func (f *fakeStore) BriefQuestions(_ context.Context, category, sub1, sub2 string) ([]catalog.BriefQuestion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return catalog.ScopeQuestions(f.questions, category, sub1, sub2), nil
}

type fakeWriter struct {
	mu      sync.Mutex
	created []ticket.Ticket
	err     error
}

func (f *fakeWriter) Create(_ context.Context, t ticket.Ticket) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, t)
	return "SOL-20260828-0001", nil
}

type fakeNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeNotifier) TicketCreated(id string, _ ticket.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func testStore() *fakeStore {
	return &fakeStore{
		clients: []catalog.Client{
			{ID: 1, Name: "Bancolombia"},
			{ID: 2, Name: "Nutresa", Subdivision: strptr("Colombia")},
			{ID: 3, Name: "Nutresa", Subdivision: strptr("México")},
			{ID: 4, Name: "Nutibara"},
		},
		services: []catalog.Service{
			serviceLona,
			{ID: 11, Category: "Impresión", Subcategory1: "Gran formato", Subcategory2: "Pendón"},
			{ID: 12, Category: "Impresión", Subcategory1: "Papelería", Subcategory2: "Volantes"},
			{ID: 13, Category: "Digital", Subcategory1: "Pauta", Subcategory2: "Redes sociales"},
		},
		questions: questionsGeneral,
	}
}

func newTestEngine(store *fakeStore, writer *fakeWriter, notifier *fakeNotifier) *RuleEngine {
	if writer == nil {
		writer = &fakeWriter{}
	}
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	return NewRuleEngine(store, writer, n, nil, nil)
}

// turn is a shorthand that fails the test on engine errors.
func turn(t *testing.T, e *RuleEngine, state State, text string) TurnResult {
	t.Helper()
	res, err := e.Turn(context.Background(), state, TurnInput{Text: text, UserID: "user-1"})
	require.NoError(t, err)
	return res
}

func TestGreetingApprovedWording(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	res := turn(t, e, NewState(), "hola")

	assert.Contains(t, res.Message, "¡Quiubo parce!")
	assert.Contains(t, res.Message, "aquí pa'")
	assert.Contains(t, res.Message, "¿para qué cliente es esta solicitud?")
	assert.Equal(t, StepAwaitClient, res.State.Step)
}

func TestClientInputTooShort(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{Step: StepAwaitClient}

	res := turn(t, e, state, "b")
	assert.Equal(t, StepAwaitClient, res.State.Step)
	assert.Equal(t, msgClientTooShort, res.Message)
}

func TestClientNotFoundSuggests(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	res := turn(t, e, State{Step: StepAwaitClient}, "Avianca")

	assert.Equal(t, StepAwaitClient, res.State.Step)
	assert.Contains(t, res.Message, `"Avianca"`)
	assert.Contains(t, res.Message, "Bancolombia")
}

func TestClientUniqueMatchAdvancesToService(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	res := turn(t, e, State{Step: StepAwaitClient}, "bancolombia")

	assert.Equal(t, StepAwaitService, res.State.Step)
	assert.Equal(t, int64(1), res.State.ClientID)
	assert.Equal(t, "Bancolombia", res.State.ClientName)
	assert.Nil(t, res.State.Subdivision)
	assert.Contains(t, res.Message, "Bancolombia")
	assert.Contains(t, res.Message, "¿qué servicio")
}

func TestClientAmbiguousNamesThenChoiceByNumber(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)

	// "nut" matches Nutresa (two subdivisions) and Nutibara.
	res := turn(t, e, State{Step: StepAwaitClient}, "nut")
	require.Equal(t, StepAwaitClientChoice, res.State.Step)
	assert.Contains(t, res.Message, "1. Nutresa")
	assert.Contains(t, res.Message, "2. Nutibara")

	res = turn(t, e, res.State, "2")
	assert.Equal(t, StepAwaitService, res.State.Step)
	assert.Equal(t, "Nutibara", res.State.ClientName)
}

func TestClientChoiceInvalidReprompts(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	res := turn(t, e, State{Step: StepAwaitClient}, "nut")
	require.Equal(t, StepAwaitClientChoice, res.State.Step)

	res = turn(t, e, res.State, "99")
	assert.Equal(t, StepAwaitClientChoice, res.State.Step)
	assert.Contains(t, res.Message, "1. Nutresa")
}

func TestClientWithSubdivisions(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)

	res := turn(t, e, State{Step: StepAwaitClient}, "nutresa")
	require.Equal(t, StepAwaitSubdivision, res.State.Step)
	assert.Contains(t, res.Message, "Colombia")
	assert.Contains(t, res.Message, "México")
	assert.Contains(t, res.Message, "General/Ninguna")

	res = turn(t, e, res.State, "méxico")
	assert.Equal(t, StepAwaitService, res.State.Step)
	assert.Equal(t, int64(3), res.State.ClientID)
	require.NotNil(t, res.State.Subdivision)
	assert.Equal(t, "México", *res.State.Subdivision)
}

func TestSingleNamedSubdivisionStillAsks(t *testing.T) {
	store := testStore()
	store.clients = []catalog.Client{
		{ID: 7, Name: "GSK"},
		{ID: 8, Name: "GSK", Subdivision: strptr("Panamá")},
	}
	e := newTestEngine(store, nil, nil)

	// One named subdivision is still the user's choice; never auto-pick it.
	res := turn(t, e, State{Step: StepAwaitClient}, "GSK")
	require.Equal(t, StepAwaitSubdivision, res.State.Step)
	assert.Contains(t, res.Message, "Panamá")
	assert.Contains(t, res.Message, "General/Ninguna")

	res = turn(t, e, res.State, "ninguna")
	assert.Equal(t, StepAwaitService, res.State.Step)
	assert.Equal(t, int64(7), res.State.ClientID)
	assert.Nil(t, res.State.Subdivision)
}

func TestAllNullSubdivisionsAutoSelect(t *testing.T) {
	store := testStore()
	store.clients = []catalog.Client{{ID: 9, Name: "GSK"}}
	e := newTestEngine(store, nil, nil)

	res := turn(t, e, State{Step: StepAwaitClient}, "GSK")
	assert.Equal(t, StepAwaitService, res.State.Step)
	assert.Equal(t, int64(9), res.State.ClientID)
	assert.Nil(t, res.State.Subdivision)
	assert.Contains(t, res.Message, "GSK")
}

func TestSubdivisionGeneralSkips(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)

	res := turn(t, e, State{Step: StepAwaitClient}, "nutresa")
	require.Equal(t, StepAwaitSubdivision, res.State.Step)

	res = turn(t, e, res.State, "ninguna")
	assert.Equal(t, StepAwaitService, res.State.Step)
	assert.Nil(t, res.State.Subdivision)
}

func TestSubdivisionUnknownReprompts(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)

	res := turn(t, e, State{Step: StepAwaitClient}, "nutresa")
	res = turn(t, e, res.State, "Chile")
	assert.Equal(t, StepAwaitSubdivision, res.State.Step)
	assert.Contains(t, res.Message, "Colombia")
}

func TestServiceZeroMatchesOffersCategories(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{Step: StepAwaitService, ClientID: 1, ClientName: "Bancolombia"}

	res := turn(t, e, state, "xyzzy")
	assert.Equal(t, StepAwaitService, res.State.Step)
	assert.Contains(t, res.Message, "Impresión")
	assert.Contains(t, res.Message, "Digital")
}

func TestServiceSingleMatchSelectsAndStartsBrief(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{Step: StepAwaitService, ClientID: 1, ClientName: "Bancolombia"}

	res := turn(t, e, state, "pauta en redes")
	require.Equal(t, StepAwaitBrief, res.State.Step)
	require.NotNil(t, res.State.Service)
	assert.Equal(t, int64(13), res.State.Service.ID)
	assert.Contains(t, res.Message, "(1/2) ¿Cuántas unidades necesitas?")
}

func TestServiceSynonymMatches(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{Step: StepAwaitService, ClientID: 1, ClientName: "Bancolombia"}

	// "flyer" must reach Volantes through the synonym table.
	res := turn(t, e, state, "flyer")
	require.NotNil(t, res.State.Service)
	assert.Equal(t, int64(12), res.State.Service.ID)
}

func TestServiceAmbiguousListsUppercaseOptions(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{Step: StepAwaitService, ClientID: 1, ClientName: "Bancolombia"}

	res := turn(t, e, state, "gran formato")
	require.Equal(t, StepAwaitServiceChoice, res.State.Step)
	require.Len(t, res.State.ServiceOptions, 2)
	assert.Contains(t, res.Message, strings.ToUpper(serviceLona.Path()))

	// Equal scores sort by weight, so Pendón (the longer leaf) lists first.
	res = turn(t, e, res.State, "2")
	assert.Equal(t, StepAwaitBrief, res.State.Step)
	require.NotNil(t, res.State.Service)
	assert.Equal(t, serviceLona.ID, res.State.Service.ID)
	assert.Nil(t, res.State.ServiceOptions)
}

func TestServiceTieBreakWeighsLeafDouble(t *testing.T) {
	store := testStore()
	store.services = []catalog.Service{
		{ID: 21, Category: "Impresión", Subcategory1: "Material punto de venta", Subcategory2: "Poster"},
		{ID: 22, Category: "Impresión", Subcategory1: "Papeles finos", Subcategory2: "Volantes mini"},
	}
	e := newTestEngine(store, nil, nil)
	state := State{Step: StepAwaitService, ClientID: 1, ClientName: "Bancolombia"}

	res := turn(t, e, state, "impresión")
	require.Equal(t, StepAwaitServiceChoice, res.State.Step)
	require.Len(t, res.State.ServiceOptions, 2)
	// Counting each level once would put the longer middle level first; the
	// doubled leaf outweighs it.
	assert.Equal(t, "Volantes mini", res.State.ServiceOptions[0].Subcategory2)
}

func TestServiceChoiceByFullName(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{Step: StepAwaitService, ClientID: 1, ClientName: "Bancolombia"}

	res := turn(t, e, state, "gran formato")
	require.Equal(t, StepAwaitServiceChoice, res.State.Step)

	res = turn(t, e, res.State, "impresión / gran formato / pendón")
	assert.Equal(t, StepAwaitBrief, res.State.Step)
	assert.Equal(t, int64(11), res.State.Service.ID)
}

func TestServiceChoiceInvalidReprompts(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{Step: StepAwaitService, ClientID: 1, ClientName: "Bancolombia"}

	res := turn(t, e, state, "gran formato")
	res = turn(t, e, res.State, "otra cosa")
	assert.Equal(t, StepAwaitServiceChoice, res.State.Step)
	assert.Contains(t, res.Message, "No te entendí")
}

func TestBriefAdviceAnnotation(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{
		Step: StepAwaitBrief, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona, Questions: questionsGeneral,
	}

	res := turn(t, e, state, "no sé, recomiéndame")
	require.Len(t, res.State.Answers, 1)
	assert.Equal(t, answerAdviseNote, res.State.Answers[0].Answer)
	assert.Contains(t, res.Message, "(2/2)")
}

func TestBriefExplanationAnnotation(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{
		Step: StepAwaitBrief, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona, Questions: questionsGeneral,
	}

	res := turn(t, e, state, "explícame esa pregunta")
	require.Len(t, res.State.Answers, 1)
	assert.Equal(t, answerExplainNote, res.State.Answers[0].Answer)
}

func TestBriefCompletionAsksForDesign(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{
		Step: StepAwaitBrief, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona, Questions: questionsGeneral,
	}

	res := turn(t, e, state, "500 unidades")
	assert.Equal(t, StepAwaitBrief, res.State.Step)
	assert.Contains(t, res.Message, "Formato día/mes/año.")

	res = turn(t, e, res.State, "para el 15 de marzo")
	assert.Equal(t, StepAwaitDesignLink, res.State.Step)
	assert.Contains(t, res.Message, "link del diseño")
	require.Len(t, res.State.Answers, 2)
	assert.Equal(t, "500 unidades", res.State.Answers[0].Answer)
}

func TestDesignLinkValidation(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	base := State{
		Step: StepAwaitDesignLink, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona,
	}

	res := turn(t, e, base, "lo mando después")
	assert.Equal(t, StepAwaitDesignLink, res.State.Step)
	assert.Equal(t, msgDesignReprompt, res.Message)

	res = turn(t, e, base, "https://drive.google.com/d/abc")
	assert.Equal(t, StepAwaitObservations, res.State.Step)
	require.NotNil(t, res.State.DesignLink)
	assert.Equal(t, "https://drive.google.com/d/abc", *res.State.DesignLink)

	res = turn(t, e, base, "NO")
	assert.Equal(t, StepAwaitObservations, res.State.Step)
	require.NotNil(t, res.State.HasDesign)
	assert.False(t, *res.State.HasDesign)
	assert.Nil(t, res.State.DesignLink)
}

func TestObservationsYesAsksAgain(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)
	state := State{
		Step: StepAwaitObservations, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona,
	}

	res := turn(t, e, state, "sí")
	assert.Equal(t, StepAwaitObservations, res.State.Step)
	assert.Equal(t, msgObservationsFollow, res.Message)
}

func TestFinalizeCreatesTicketAndResets(t *testing.T) {
	writer := &fakeWriter{}
	notifier := &fakeNotifier{}
	e := newTestEngine(testStore(), writer, notifier)

	sub := "Colombia"
	state := State{
		Step: StepAwaitObservations, ClientID: 2, ClientName: "Nutresa", Subdivision: &sub,
		Service: &serviceLona,
		Answers: []Answer{{Question: "¿Cuántas unidades necesitas?", Answer: "500"}},
	}

	res := turn(t, e, state, "urgente por favor")
	assert.Equal(t, StepInit, res.State.Step)
	assert.Contains(t, res.Message, "SOL-20260828-0001")
	assert.Contains(t, res.Message, "Nutresa (Colombia)")
	assert.Contains(t, res.Message, serviceLona.Path())

	require.Len(t, writer.created, 1)
	created := writer.created[0]
	assert.Equal(t, int64(2), created.ClientID)
	assert.Equal(t, int64(10), created.ServiceID)
	assert.Equal(t, "user-1", created.UserID)
	require.NotNil(t, created.Observations)
	assert.Equal(t, "urgente por favor", *created.Observations)

	assert.Equal(t, []string{"SOL-20260828-0001"}, notifier.ids)
}

func TestFinalizeNoObservations(t *testing.T) {
	writer := &fakeWriter{}
	e := newTestEngine(testStore(), writer, nil)
	state := State{
		Step: StepAwaitObservations, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona,
	}

	res := turn(t, e, state, "no")
	assert.Equal(t, StepInit, res.State.Step)
	require.Len(t, writer.created, 1)
	assert.Nil(t, writer.created[0].Observations)
}

func TestFinalizeFailureApologizesAndResets(t *testing.T) {
	writer := &fakeWriter{err: errors.New("db down")}
	e := newTestEngine(testStore(), writer, nil)
	state := State{
		Step: StepAwaitObservations, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona,
	}

	res := turn(t, e, state, "no")
	assert.Equal(t, StepInit, res.State.Step)
	assert.Contains(t, res.Message, "no pude guardar")
}

func TestInvalidStateResetsWithGreeting(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)

	res := turn(t, e, State{Step: Step("QUE_ES_ESTO")}, "hola")
	assert.Equal(t, StepAwaitClient, res.State.Step)
	assert.Contains(t, res.Message, "¡Quiubo parce!")
}

func TestErrorStateRestartsConversation(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)

	res := turn(t, e, State{Step: StepError}, "hola")
	assert.Equal(t, StepAwaitClient, res.State.Step)
	assert.Contains(t, res.Message, "¡Quiubo parce!")
}

func TestMetricsRecordMatchAndTicketOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDialogueMetrics(reg)
	e := NewRuleEngine(testStore(), &fakeWriter{}, nil, m, nil)

	res := turn(t, e, State{Step: StepAwaitClient}, "bancolombia")
	require.Equal(t, StepAwaitService, res.State.Step)
	res = turn(t, e, res.State, "xyzzy")
	require.Equal(t, StepAwaitService, res.State.Step)

	state := State{
		Step: StepAwaitObservations, ClientID: 1, ClientName: "Bancolombia",
		Service: &serviceLona,
	}
	res = turn(t, e, state, "no")
	require.Equal(t, StepInit, res.State.Step)

	families, err := reg.Gather()
	require.NoError(t, err)
	series := map[string]int{}
	for _, mf := range families {
		series[mf.GetName()] = len(mf.GetMetric())
	}
	// cliente/unico and servicio/sin_resultado, plus one ticket ok.
	assert.Equal(t, 2, series["colectiva_dialogue_matches_total"])
	assert.Equal(t, 1, series["colectiva_tickets_created_total"])
}

func TestBackendErrorLeavesStateUntouched(t *testing.T) {
	store := testStore()
	store.err = errors.New("redis y postgres caídos")
	e := newTestEngine(store, nil, nil)
	state := State{Step: StepAwaitClient}

	_, err := e.Turn(context.Background(), state, TurnInput{Text: "bancolombia"})
	require.Error(t, err)
}

func TestSmalltalkKeepsStep(t *testing.T) {
	e := newTestEngine(testStore(), nil, nil)

	res := turn(t, e, State{Step: StepAwaitClient}, "buenas tardes")
	assert.Equal(t, StepAwaitClient, res.State.Step)
	assert.Contains(t, res.Message, "¿para qué cliente")
}

func TestFullHappyPath(t *testing.T) {
	writer := &fakeWriter{}
	e := newTestEngine(testStore(), writer, nil)

	res := turn(t, e, NewState(), "hola")
	res = turn(t, e, res.State, "bancolombia")
	res = turn(t, e, res.State, "necesito una lona")
	require.Equal(t, StepAwaitBrief, res.State.Step, "message: %s", res.Message)
	res = turn(t, e, res.State, "500")
	res = turn(t, e, res.State, "15 de marzo")
	require.Equal(t, StepAwaitDesignLink, res.State.Step)
	res = turn(t, e, res.State, "https://example.com/arte.pdf")
	res = turn(t, e, res.State, "no")

	assert.Equal(t, StepInit, res.State.Step)
	require.Len(t, writer.created, 1)
	created := writer.created[0]
	assert.Equal(t, serviceLona.ID, created.ServiceID)
	require.NotNil(t, created.DesignLink)
	assert.Len(t, created.Answers, 2)
}
