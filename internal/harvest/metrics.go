package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("review-harvester/harvest")

var (
	recordsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Name:      "records_admitted_total",
		Help:      "Records accepted by the deduplicator",
	})

	recordsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Name:      "records_rejected_total",
		Help:      "Records rejected as already seen",
	})

	flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvester",
		Name:      "flushes_total",
		Help:      "Sink flush attempts by result",
	}, []string{"result"})

	flushBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "harvester",
		Name:      "flush_batch_size",
		Help:      "Records per successful flush",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	reveals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvester",
		Name:      "reveals_total",
		Help:      "Reveal-trigger attempts by result",
	}, []string{"result"})

	stagnations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "harvester",
		Name:      "stagnant_polls_total",
		Help:      "Polls that admitted no new records",
	})

	runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harvester",
		Name:      "runs_total",
		Help:      "Completed runs by terminal phase",
	}, []string{"phase"})
)
