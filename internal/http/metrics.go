package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "drug_verifications_total",
	Help: "Drug verifications by resolution source and verdict.",
}, []string{"source", "result"})

var sosEscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sos_escalations_total",
	Help: "SOS sessions escalated by on-demand sweeps.",
})
