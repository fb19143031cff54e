package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yggdrasil_events_dispatched_total",
	Help: "Events routed to a handler, by event kind.",
}, []string{"kind"})

var eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yggdrasil_events_dropped_total",
	Help: "Events with no registered handler, by event kind.",
}, []string{"kind"})

var lifecyclePasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yggdrasil_lifecycle_passes_total",
	Help: "Lifecycle passes executed, by outcome.",
}, []string{"outcome"})

var activePasses = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "yggdrasil_lifecycle_passes_active",
	Help: "Lifecycle passes currently in flight.",
})
