package checkin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkinsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_checkins_accepted_total",
		Help: "Check-ins that produced a ledger row.",
	})
	checkinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_checkins_rejected_total",
		Help: "Check-ins rejected, by reason.",
	}, []string{"reason"})
	activationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_session_activations_total",
		Help: "Session activations (fresh codes minted).",
	})
)
