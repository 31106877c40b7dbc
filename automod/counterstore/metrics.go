package counterstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decayedRows = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_counter_decayed_rows",
	Help: "Number of counter value rows moved toward initial value by decay sweeps",
})
