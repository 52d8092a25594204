// Package metrics exposes Prometheus counters for token refreshes and agent cascades.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	ReasonDestroy = "destroy"
	ReasonToggle  = "toggle"
)

var (
	// TokenRefreshes counts refresh round-trips against provider token endpoints.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicehub_token_refresh_total",
			Help: "Token refresh attempts by provider and result",
		},
		[]string{"provider", "result"},
	)

	// AgentsDisabled counts agents detached from a service and disabled.
	AgentsDisabled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicehub_agents_disabled_total",
			Help: "Agents detached and disabled by service cascades",
		},
		[]string{"reason"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
