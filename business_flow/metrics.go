package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token create attempts that reached the store, by outcome
var tokenCreates = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "token_registry_token_creates_total",
		Help: "Token create attempts by outcome",
	},
	[]string{"outcome"},
)
