package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillbin_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillbin_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteForked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillbin_paste_forked_total",
		Help: "no. of fork drafts served",
	})
	PasteBurned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillbin_paste_burned_total",
		Help: "no. of pastes deleted by burn-after-reading",
	})
	PasswordChecksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillbin_password_checks_failed_total",
		Help: "no. of rejected paste password attempts",
	})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillbin_sweep_cycles_total",
		Help: "no. of expired-paste sweeper cycles",
	})
	SweptPastes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quillbin_swept_pastes_total",
		Help: "no. of expired pastes removed by the sweeper",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quillbin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
)
