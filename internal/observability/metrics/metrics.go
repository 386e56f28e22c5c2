package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogueMetrics exposes counters/histograms for the intake conversation.
type DialogueMetrics struct {
	turnsTotal   *prometheus.CounterVec
	turnLatency  *prometheus.HistogramVec
	matchesTotal *prometheus.CounterVec
	ticketsTotal *prometheus.CounterVec
}

func NewDialogueMetrics(reg prometheus.Registerer) *DialogueMetrics {
	m := &DialogueMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colectiva",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total conversation turns",
		}, []string{"engine", "step", "status"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "colectiva",
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"engine"}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colectiva",
			Subsystem: "dialogue",
			Name:      "matches_total",
			Help:      "Catalog match outcomes",
		}, []string{"kind", "outcome"}),
		ticketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "colectiva",
			Subsystem: "tickets",
			Name:      "created_total",
			Help:      "Solicitud creation attempts",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.matchesTotal, m.ticketsTotal)
	return m
}

func (m *DialogueMetrics) ObserveTurn(engine, step, status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(engine, step, status).Inc()
	m.turnLatency.WithLabelValues(engine).Observe(seconds)
}

// ObserveMatch records a lookup outcome: kind is "cliente" or "servicio",
// outcome is "unico", "ambiguo" or "sin_resultado".
func (m *DialogueMetrics) ObserveMatch(kind, outcome string) {
	if m == nil {
		return
	}
	m.matchesTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *DialogueMetrics) ObserveTicket(status string) {
	if m == nil {
		return
	}
	m.ticketsTotal.WithLabelValues(status).Inc()
}
