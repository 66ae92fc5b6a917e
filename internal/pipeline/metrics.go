package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_ticks_total",
			Help: "Processed ticks by outcome.",
		},
		[]string{"outcome"},
	)
	stageFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewatch_stage_faults_total",
			Help: "Collaborator failures caught inside a tick.",
		},
		[]string{"stage"},
	)
)
