package docstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var saveConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "yggdrasil_docstore_save_conflicts_total",
	Help: "Document saves rejected because of a concurrent writer.",
})
