package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sujalbistaa/stickyboard/internal/moderation"
)

// Recorder counts committed moderation events. It owns its registry so tests
// can build as many as they like.
type Recorder struct {
	registry    *prometheus.Registry
	events      *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	wsClients   prometheus.GaugeFunc
}

// New builds a Recorder. connected, if non-nil, backs the websocket client
// gauge.
func New(connected func() int) *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stickyboard",
				Name:      "moderation_events_total",
				Help:      "Committed moderation events by type.",
			},
			[]string{"type"},
		),
		rateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stickyboard",
				Name:      "rate_limited_total",
				Help:      "Submissions refused by a rate-limit policy.",
			},
			[]string{"policy"},
		),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.events,
		r.rateLimited,
	)
	if connected != nil {
		r.wsClients = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "stickyboard",
				Name:      "websocket_clients",
				Help:      "Connected websocket clients.",
			},
			func() float64 { return float64(connected()) },
		)
		reg.MustRegister(r.wsClients)
	}
	return r
}

func (r *Recorder) Publish(_ context.Context, event moderation.Event) {
	r.events.WithLabelValues(string(event.Type)).Inc()
	if event.Type == moderation.EventRateLimited {
		r.rateLimited.WithLabelValues(string(event.Policy)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

var _ moderation.Publisher = (*Recorder)(nil)
