package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Monitor metrics
	ticksTotal          prometheus.Counter
	tickErrorsTotal     prometheus.Counter
	regionsEvaluated    prometheus.Counter
	tickDuration        prometheus.Histogram
	positionUnavailable prometheus.Counter

	// Event bus metrics
	eventsEmittedTotal *prometheus.CounterVec
	eventsDroppedTotal prometheus.Counter
	subscriberCount    prometheus.Gauge

	// Executor metrics
	triggersExecutedTotal *prometheus.CounterVec
	triggerDuration       prometheus.Histogram
	eventsInFlight        prometheus.Gauge

	// Webhook metrics
	webhookSendsTotal *prometheus.CounterVec
	webhookDuration   prometheus.Histogram

	// Scoring metrics
	assignmentsTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initMonitorMetrics(reg)
	s.initBusMetrics(reg)
	s.initExecutorMetrics(reg)
	s.initScoringMetrics(reg)
	return s
}

func (s *PrometheusSink) initMonitorMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchd_monitor_ticks_total",
		Help: "Total number of monitor ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchd_monitor_tick_errors_total",
		Help: "Total number of monitor tick errors.",
	})
	s.regionsEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchd_monitor_regions_evaluated_total",
		Help: "Total number of active geofence evaluations.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatchd_monitor_tick_duration_seconds",
		Help:    "Duration of each monitor tick in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
	})
	s.positionUnavailable = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchd_monitor_position_unavailable_total",
		Help: "Total number of ticks skipped because no position was available.",
	})

	s.register(reg, s.ticksTotal, "dispatchd_monitor_ticks_total")
	s.register(reg, s.tickErrorsTotal, "dispatchd_monitor_tick_errors_total")
	s.register(reg, s.regionsEvaluated, "dispatchd_monitor_regions_evaluated_total")
	s.register(reg, s.tickDuration, "dispatchd_monitor_tick_duration_seconds")
	s.register(reg, s.positionUnavailable, "dispatchd_monitor_position_unavailable_total")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.eventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchd_events_emitted_total",
		Help: "Total number of geofence events emitted.",
	}, []string{"kind"})
	s.eventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatchd_events_dropped_total",
		Help: "Total number of events dropped for slow subscribers.",
	})
	s.subscriberCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatchd_event_subscribers",
		Help: "Number of registered event subscribers.",
	})

	s.register(reg, s.eventsEmittedTotal, "dispatchd_events_emitted_total")
	s.register(reg, s.eventsDroppedTotal, "dispatchd_events_dropped_total")
	s.register(reg, s.subscriberCount, "dispatchd_event_subscribers")
}

func (s *PrometheusSink) initExecutorMetrics(reg prometheus.Registerer) {
	s.triggersExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchd_triggers_executed_total",
		Help: "Total number of trigger executions by action and outcome.",
	}, []string{"action", "outcome"})
	s.triggerDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatchd_trigger_duration_seconds",
		Help:    "Duration of each trigger execution in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	s.eventsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatchd_executor_events_in_flight",
		Help: "Number of events currently being executed.",
	})
	s.webhookSendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchd_webhook_sends_total",
		Help: "Total number of side-effect webhook sends by target and status class.",
	}, []string{"target", "status_class"})
	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatchd_webhook_duration_seconds",
		Help:    "Side-effect webhook request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.triggersExecutedTotal, "dispatchd_triggers_executed_total")
	s.register(reg, s.triggerDuration, "dispatchd_trigger_duration_seconds")
	s.register(reg, s.eventsInFlight, "dispatchd_executor_events_in_flight")
	s.register(reg, s.webhookSendsTotal, "dispatchd_webhook_sends_total")
	s.register(reg, s.webhookDuration, "dispatchd_webhook_duration_seconds")
}

func (s *PrometheusSink) initScoringMetrics(reg prometheus.Registerer) {
	s.assignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatchd_assignments_total",
		Help: "Total number of assignment evaluations by outcome.",
	}, []string{"outcome"})

	s.register(reg, s.assignmentsTotal, "dispatchd_assignments_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Monitor metrics implementation

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, regionsEvaluated int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	s.regionsEvaluated.Add(float64(regionsEvaluated))
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) PositionUnavailable() {
	s.positionUnavailable.Inc()
}

// Event bus metrics implementation

func (s *PrometheusSink) EventEmitted(kind string) {
	s.eventsEmittedTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) EventDropped() {
	s.eventsDroppedTotal.Inc()
}

func (s *PrometheusSink) SubscriberCountUpdate(count int) {
	s.subscriberCount.Set(float64(count))
}

// Executor metrics implementation

func (s *PrometheusSink) TriggerExecuted(action string, outcome string, duration time.Duration) {
	s.triggersExecutedTotal.WithLabelValues(action, outcome).Inc()
	s.triggerDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) EventsInFlightIncr() {
	s.eventsInFlight.Inc()
}

func (s *PrometheusSink) EventsInFlightDecr() {
	s.eventsInFlight.Dec()
}

func (s *PrometheusSink) WebhookSendCompleted(target string, statusClass string, duration time.Duration) {
	s.webhookSendsTotal.WithLabelValues(target, statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

// Scoring metrics implementation

func (s *PrometheusSink) AssignmentEvaluated(outcome string) {
	s.assignmentsTotal.WithLabelValues(outcome).Inc()
}
