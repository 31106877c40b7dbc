package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_automod_events_processed",
	Help: "Number of inbound automod facts processed",
}, []string{"type"})

var eventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_automod_event_errors",
	Help: "Number of automod facts which failed processing",
}, []string{"type"})

var triggersFired = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_automod_counter_triggers_fired",
	Help: "Number of counterTrigger facts emitted",
})

var rulesFired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_automod_rules_fired",
	Help: "Number of automod rule dispatches, by rule name",
}, []string{"rule"})

var actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_automod_actions_executed",
	Help: "Number of automod actions executed, by action kind",
}, []string{"kind"})

var actionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_automod_actions_failed",
	Help: "Number of automod actions which failed, by action kind",
}, []string{"kind"})
