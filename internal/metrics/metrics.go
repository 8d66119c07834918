// Package metrics exposes Prometheus series for the attendance pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prom implements session.Recorder with Prometheus counters.
type Prom struct {
	accepted *prometheus.CounterVec
	rejected *prometheus.CounterVec
	started  *prometheus.CounterVec
	stopped  prometheus.Counter
}

// New registers the attendance counters on the default registry.
func New() *Prom {
	return &Prom{
		accepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attendify_checkins_accepted_total",
			Help: "Accepted check-ins by method.",
		}, []string{"method"}),
		rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attendify_checkins_rejected_total",
			Help: "Rejected check-ins by reason.",
		}, []string{"reason"}),
		started: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attendify_sessions_started_total",
			Help: "Attendance sessions started by method.",
		}, []string{"method"}),
		stopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attendify_sessions_stopped_total",
			Help: "Attendance sessions stopped or expired.",
		}),
	}
}

func (p *Prom) CheckinAccepted(method string) { p.accepted.WithLabelValues(method).Inc() }
func (p *Prom) CheckinRejected(reason string) { p.rejected.WithLabelValues(reason).Inc() }
func (p *Prom) SessionStarted(method string)  { p.started.WithLabelValues(method).Inc() }
func (p *Prom) SessionStopped()               { p.stopped.Inc() }
