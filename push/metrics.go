package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe: a Registry built without metrics records nothing.
type Metrics struct {
	Online    prometheus.Gauge
	Delivered *prometheus.CounterVec
	Missed    *prometheus.CounterVec
	Evicted   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Online: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "push",
			Name:      "channels_online",
			Help:      "Number of users with a live push channel.",
		}),
		Delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "push",
			Name:      "events_delivered_total",
			Help:      "Events queued on a live push channel.",
		}, []string{"type"}),
		Missed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "push",
			Name:      "events_missed_total",
			Help:      "Events not delivered live because the recipient was offline or evicted.",
		}, []string{"type"}),
		Evicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "push",
			Name:      "channels_evicted_total",
			Help:      "Channels dropped because their queue was full.",
		}),
	}
}

func (m *Metrics) online(delta float64) {
	if m == nil {
		return
	}
	m.Online.Add(delta)
}

func (m *Metrics) delivered(eventType string) {
	if m == nil {
		return
	}
	m.Delivered.WithLabelValues(eventType).Inc()
}

func (m *Metrics) missed(eventType string) {
	if m == nil {
		return
	}
	m.Missed.WithLabelValues(eventType).Inc()
}

func (m *Metrics) evicted() {
	if m == nil {
		return
	}
	m.Evicted.Inc()
}
