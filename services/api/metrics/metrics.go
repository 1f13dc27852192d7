// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shizuku_readings_ingested_total",
			Help: "Total number of readings persisted, by ingress channel",
		},
		[]string{"source"},
	)

	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shizuku_ingest_failures_total",
			Help: "Total number of ingestion attempts that failed, by ingress channel and reason",
		},
		[]string{"source", "reason"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shizuku_alerts_generated_total",
			Help: "Total number of threshold alerts recorded",
		},
		[]string{"variable", "severity"},
	)

	SensorConfigErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shizuku_sensor_config_errors_total",
			Help: "Total number of sensor evaluations skipped because of degenerate bounds",
		},
	)

	AnomalyVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shizuku_anomaly_verdicts_total",
			Help: "Total number of anomaly verdicts, by verdict source and outcome",
		},
		[]string{"source", "anomalous"},
	)

	ScoringDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shizuku_scoring_dropped_total",
			Help: "Total number of readings not scored because the scoring queue was full",
		},
	)

	SubscriberReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shizuku_subscriber_reconnects_total",
			Help: "Total number of pub/sub resubscribe attempts",
		},
	)

	MirrorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shizuku_mirror_failures_total",
			Help: "Total number of readings that could not be copied to the time-series mirror",
		},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shizuku_ingest_duration_seconds",
			Help:    "Time taken to run one reading through the pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
)
