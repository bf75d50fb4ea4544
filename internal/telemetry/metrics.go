package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/domain"
	"github.com/Tamnhhe/Satori-Nihongo-sub006/internal/event"
)

// Metrics counts attempt lifecycle events from the event bus.
type Metrics struct {
	started         prometheus.Counter
	completed       prometheus.Counter
	scoreRatio      prometheus.Histogram
	handlerFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_started_total",
			Help: "Number of attempts started.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quiz_attempts_completed_total",
			Help: "Number of attempts completed.",
		}),
		scoreRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quiz_attempt_score_ratio",
			Help:    "Raw score divided by max score of completed attempts.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quiz_event_handler_failures_total",
			Help: "Number of event handlers that returned an error or panicked.",
		}, []string{"event"}),
	}

	reg.MustRegister(m.started, m.completed, m.scoreRatio, m.handlerFailures)
	return m
}

// Subscribe starts counting events published on eb.
func (m *Metrics) Subscribe(eb *event.Bus) {
	eb.Subscribe(domain.EventNameAttemptStarted, func(context.Context, event.Event) error {
		m.started.Inc()
		return nil
	})

	eb.Subscribe(domain.EventNameAttemptCompleted, func(_ context.Context, e event.Event) error {
		m.completed.Inc()

		r := e.(domain.EventAttemptCompleted).Result
		if r.MaxScore.IsPositive() {
			m.scoreRatio.Observe(r.RawScore.Div(r.MaxScore).InexactFloat64())
		}
		return nil
	})
}

// EventHandlerFailed is an event.FailureHook.
func (m *Metrics) EventHandlerFailed(name string) {
	m.handlerFailures.WithLabelValues(name).Inc()
}
