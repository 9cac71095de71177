// Package metrics registra los contadores Prometheus del servicio.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionDecisions cuenta decisiones del pipeline por etapa y resultado.
	// stage: rate|auth|quota, outcome: allowed|denied|error
	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorman",
		Subsystem: "admission",
		Name:      "decisions_total",
		Help:      "Admission pipeline decisions by stage and outcome.",
	}, []string{"stage", "outcome"})

	// TokenGrants cuenta emisiones de tokens por grant type.
	TokenGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorman",
		Subsystem: "oauth",
		Name:      "token_grants_total",
		Help:      "Issued token pairs by grant type.",
	}, []string{"grant_type"})

	// TokenGrantFailures cuenta intercambios fallidos por grant type y error.
	TokenGrantFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorman",
		Subsystem: "oauth",
		Name:      "token_grant_failures_total",
		Help:      "Failed token requests by grant type and error code.",
	}, []string{"grant_type", "error"})

	// HTTPRequests por ruta y status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "doorman",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"route", "status"})
)
