package statsdclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsrelay_client_connects_total",
			Help: "The number of successful TCP connections made to a downstream endpoint.",
		},
		[]string{"endpoint"},
	)
	connectErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsrelay_client_connect_errors_total",
			Help: "The number of failed connection attempts to a downstream endpoint.",
		},
		[]string{"endpoint"},
	)
	writeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsrelay_client_write_errors_total",
			Help: "The number of write errors (including short/zero-byte writes) to a downstream endpoint.",
		},
		[]string{"endpoint"},
	)
	bytesWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statsrelay_client_bytes_written_total",
			Help: "The number of bytes successfully written to a downstream endpoint.",
		},
		[]string{"endpoint"},
	)
)
