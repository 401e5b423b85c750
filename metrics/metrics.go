package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vendor-desk/gateway"
)

// Registry holds the desk's Prometheus collectors. A nil *Registry is valid
// and records nothing.
type Registry struct {
	reg *prometheus.Registry

	polls           *prometheus.CounterVec
	pollsUnchanged  *prometheus.CounterVec
	gatewayFailures *prometheus.CounterVec
	leadOutcomes    *prometheus.CounterVec
	leadsOpen       prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_polls_total",
		Help: "Completed poll cycles.",
	}, []string{"poller"})
	unchanged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_polls_unchanged_total",
		Help: "Poll cycles whose result matched the displayed rows and was not applied.",
	}, []string{"poller"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_gateway_failures_total",
		Help: "Gateway calls absorbed as empty results.",
	}, []string{"op", "kind"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_lead_outcomes_total",
		Help: "Closed lead offers by action and result.",
	}, []string{"action", "result"})
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "desk_leads_open",
		Help: "Lead offers currently counting down.",
	})

	r.MustRegister(polls, unchanged, failures, outcomes, open)
	return &Registry{
		reg:             r,
		polls:           polls,
		pollsUnchanged:  unchanged,
		gatewayFailures: failures,
		leadOutcomes:    outcomes,
		leadsOpen:       open,
	}
}

func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// PollCompleted records one poll cycle; changed is false when the result was skipped.
func (r *Registry) PollCompleted(poller string, changed bool) {
	if r == nil {
		return
	}
	r.polls.WithLabelValues(poller).Inc()
	if !changed {
		r.pollsUnchanged.WithLabelValues(poller).Inc()
	}
}

// GatewayFailure records an absorbed gateway error.
func (r *Registry) GatewayFailure(op string, err error) {
	if r == nil {
		return
	}
	r.gatewayFailures.WithLabelValues(op, failureKind(err)).Inc()
}

func (r *Registry) LeadOpened() {
	if r == nil {
		return
	}
	r.leadsOpen.Inc()
}

func (r *Registry) LeadClosed(action string, failed bool) {
	if r == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	r.leadsOpen.Dec()
	r.leadOutcomes.WithLabelValues(action, result).Inc()
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, gateway.ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, gateway.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
