package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the conversation engine.
// All observe methods are nil-safe so callers can run without metrics.
type EngineMetrics struct {
	messagesTotal    *prometheus.CounterVec
	stageTransitions *prometheus.CounterVec
	backendCalls     *prometheus.CounterVec
	backendRetries   *prometheus.CounterVec
	bookingsTotal    prometheus.Counter
	commandsTotal    *prometheus.CounterVec
	messageDuration  *prometheus.HistogramVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "conversation",
			Name:      "messages_total",
			Help:      "Total processed utterances",
		}, []string{"channel"}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "conversation",
			Name:      "stage_transitions_total",
			Help:      "Total stage transitions",
		}, []string{"from", "to"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "pms",
			Name:      "backend_calls_total",
			Help:      "Total reservation-backend calls",
		}, []string{"operation", "outcome"}),
		backendRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "pms",
			Name:      "backend_retries_total",
			Help:      "Total reservation-backend retries",
		}, []string{"operation"}),
		bookingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "conversation",
			Name:      "bookings_total",
			Help:      "Total confirmed bookings",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "conversation",
			Name:      "commands_total",
			Help:      "Total recognized command keywords",
		}, []string{"command"}),
		messageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "conversation",
			Name:      "message_duration_seconds",
			Help:      "Latency of utterance processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.messagesTotal, m.stageTransitions, m.backendCalls,
		m.backendRetries, m.bookingsTotal, m.commandsTotal, m.messageDuration,
	)
	return m
}

func (m *EngineMetrics) ObserveMessage(channel string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel).Inc()
}

func (m *EngineMetrics) ObserveStageTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.stageTransitions.WithLabelValues(from, to).Inc()
}

func (m *EngineMetrics) ObserveBackendCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *EngineMetrics) ObserveBackendRetry(operation string) {
	if m == nil {
		return
	}
	m.backendRetries.WithLabelValues(operation).Inc()
}

func (m *EngineMetrics) ObserveBookingConfirmed() {
	if m == nil {
		return
	}
	m.bookingsTotal.Inc()
}

func (m *EngineMetrics) ObserveCommand(command string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command).Inc()
}

func (m *EngineMetrics) ObserveMessageDuration(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.messageDuration.WithLabelValues(channel).Observe(seconds)
}
