package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "syncbridge"

// Exporter exposes a Collector to Prometheus. Values are read from a fresh
// Snapshot on every scrape, so the Collector stays the single source of truth.
type Exporter struct {
	collector *Collector

	requests    *prometheus.Desc
	failures    *prometheus.Desc
	synthesized *prometheus.Desc
	bytes       *prometheus.Desc
	workers     *prometheus.Desc
	busy        *prometheus.Desc
	queued      *prometheus.Desc
}

// NewExporter creates a Prometheus collector backed by c.
func NewExporter(c *Collector) *Exporter {
	return &Exporter{
		collector: c,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Requests by lifecycle state.",
			[]string{"state"}, nil,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failures_total"),
			"Request failures by kind.",
			[]string{"kind"}, nil,
		),
		synthesized: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "synthesized_responses_total"),
			"Responses synthesized by the adapter, by status code.",
			[]string{"status"}, nil,
		),
		bytes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "body_bytes_total"),
			"Body bytes moved through the adapter.",
			[]string{"direction"}, nil,
		),
		workers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "workers"),
			"Configured worker count.",
			nil, nil,
		),
		busy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "busy_workers"),
			"Workers currently running a handler.",
			nil, nil,
		),
		queued: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "queued_tasks"),
			"Handler invocations waiting for a worker.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.requests
	ch <- e.failures
	ch <- e.synthesized
	ch <- e.bytes
	ch <- e.workers
	ch <- e.busy
	ch <- e.queued
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.collector.Snapshot()

	counter := func(desc *prometheus.Desc, v int64, label string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), label)
	}
	gauge := func(desc *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v))
	}

	counter(e.requests, s.RequestsStarted, "started")
	counter(e.requests, s.RequestsCompleted, "completed")
	counter(e.requests, s.RequestsAbandoned, "abandoned")

	counter(e.failures, s.BodyTooLarge, "body_too_large")
	counter(e.failures, s.ProtocolViolations, "protocol_violation")
	counter(e.failures, s.HandlerFailures, "handler_error")
	counter(e.failures, s.HandlerPanics, "handler_panic")
	counter(e.failures, s.StreamsAborted, "stream_aborted")

	for status, n := range s.Synthesized {
		counter(e.synthesized, n, strconv.Itoa(status))
	}

	counter(e.bytes, s.BytesIn, "in")
	counter(e.bytes, s.BytesOut, "out")

	gauge(e.workers, s.Workers)
	gauge(e.busy, s.Busy)
	gauge(e.queued, s.Queued)
}
