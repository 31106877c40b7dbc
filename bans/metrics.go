package bans

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var bansExpired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_temp_bans_expired",
	Help: "Number of temporary bans lifted by the expiry sweep",
})
