package migrations

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Step outcomes partitioned by version and outcome
var stepOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "token_registry_migration_steps_total",
		Help: "Migration steps processed at startup, by outcome",
	},
	[]string{"version", "outcome"},
)
