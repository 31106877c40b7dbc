package cases

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var casesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_cases_created",
	Help: "Number of cases recorded, by case type",
}, []string{"type"})

var dmsSent = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_case_dms_sent",
	Help: "Number of case notification DMs delivered",
})
