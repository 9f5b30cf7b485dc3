// Package metrics holds the process counters for vault and relay activity.
// A nil *Registry is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "satya"

const (
	ResultOK        = "ok"
	ResultAuth      = "auth_failed"
	ResultThrottled = "throttled"
	ResultTimeout   = "timeout"
	ResultError     = "error"
)

type Registry struct {
	reg *prometheus.Registry

	unlocks           *prometheus.CounterVec
	identitiesCreated prometheus.Counter
	intentsSigned     prometheus.Counter
	relayPublish      *prometheus.CounterVec
	relayFetch        *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_unlock_total",
			Help:      "Vault unlock attempts by result.",
		}, []string{"result"}),
		identitiesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identities_created_total",
			Help:      "Identities appended and persisted.",
		}),
		intentsSigned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_signed_total",
			Help:      "Intent envelopes signed.",
		}),
		relayPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_publish_total",
			Help:      "Relay publish attempts by result.",
		}, []string{"result"}),
		relayFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_fetch_total",
			Help:      "Relay fetch attempts by result.",
		}, []string{"result"}),
	}
	r.reg.MustRegister(
		r.unlocks,
		r.identitiesCreated,
		r.intentsSigned,
		r.relayPublish,
		r.relayFetch,
		collectors.NewGoCollector(),
	)
	return r
}

func (r *Registry) Unlock(result string) {
	if r == nil {
		return
	}
	r.unlocks.WithLabelValues(result).Inc()
}

func (r *Registry) IdentityCreated() {
	if r == nil {
		return
	}
	r.identitiesCreated.Inc()
}

func (r *Registry) IntentSigned() {
	if r == nil {
		return
	}
	r.intentsSigned.Inc()
}

func (r *Registry) RelayPublish(result string) {
	if r == nil {
		return
	}
	r.relayPublish.WithLabelValues(result).Inc()
}

func (r *Registry) RelayFetch(result string) {
	if r == nil {
		return
	}
	r.relayFetch.WithLabelValues(result).Inc()
}

// Gatherer exposes the underlying registry for scraping or tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.reg
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}
