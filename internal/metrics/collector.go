// Package metrics counts requests, cache lookups and ingestion units for a
// run. A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// Collector holds the run's metrics in a private registry
type Collector struct {
	registry *prometheus.Registry

	// Counters
	requests     *prometheus.CounterVec
	retries      *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	units        *prometheus.CounterVec

	// Histograms
	requestDuration *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec

	// Gauges
	processRSS prometheus.Gauge
	processCPU prometheus.Gauge
}

// NewCollector creates a collector with all metrics registered
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,

		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "culturedb_http_requests_total",
			Help: "HTTP requests sent to upstream APIs by host and status code",
		}, []string{"host", "code"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "culturedb_http_retries_total",
			Help: "Retried upstream requests by host",
		}, []string{"host"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "culturedb_cache_lookups_total",
			Help: "Response cache lookups by namespace and result",
		}, []string{"namespace", "result"}),

		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "culturedb_units_total",
			Help: "Ingestion units by stage and outcome",
		}, []string{"stage", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "culturedb_http_request_duration_seconds",
			Help:    "Upstream request latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"host"}),

		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "culturedb_stage_duration_seconds",
			Help:    "Wall time per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		}, []string{"stage"}),

		processRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "culturedb_process_resident_bytes",
			Help: "Resident memory of the ingest process at last sample",
		}),

		processCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "culturedb_process_cpu_percent",
			Help: "CPU percent of the ingest process since start",
		}),
	}

	registry.MustRegister(
		c.requests, c.retries, c.cacheLookups, c.units,
		c.requestDuration, c.stageDuration,
		c.processRSS, c.processCPU,
	)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest records one HTTP attempt. code is 0 for transport failures.
func (c *Collector) ObserveRequest(host string, code int, d time.Duration) {
	if c == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	c.requests.WithLabelValues(host, label).Inc()
	c.requestDuration.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveRetry records that an attempt is being retried.
func (c *Collector) ObserveRetry(host string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(host).Inc()
}

// ObserveCache records a cache hit or miss.
func (c *Collector) ObserveCache(namespace string, hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(namespace, result).Inc()
}

// ObserveUnit records the outcome of one ingestion unit.
func (c *Collector) ObserveUnit(stage, status string) {
	if c == nil {
		return
	}
	c.units.WithLabelValues(stage, status).Inc()
}

// ObserveStage records how long a stage ran.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ProcessStats is a point-in-time sample of this process.
type ProcessStats struct {
	RSSBytes   uint64
	CPUPercent float64
}

// SampleProcess reads RSS and CPU for the current process and updates the
// gauges.
func (c *Collector) SampleProcess() (ProcessStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessStats{}, fmt.Errorf("inspect process: %w", err)
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("read memory: %w", err)
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return ProcessStats{}, fmt.Errorf("read cpu: %w", err)
	}
	stats := ProcessStats{RSSBytes: mem.RSS, CPUPercent: cpu}
	if c != nil {
		c.processRSS.Set(float64(mem.RSS))
		c.processCPU.Set(cpu)
	}
	return stats, nil
}

// WriteTextfile writes all metrics in Prometheus text format, for the node
// exporter textfile collector or for inspection after a run.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
