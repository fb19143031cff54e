package hpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yggdrasil_hpc_jobs_submitted_total",
	Help: "Jobs successfully submitted to the scheduler.",
})

var activeMonitors = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "yggdrasil_hpc_monitors_active",
	Help: "Job monitors currently polling.",
})
