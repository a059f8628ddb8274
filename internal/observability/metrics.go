package observability

import (
	"bufio"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricsRegistry holds all registered metrics.
type MetricsRegistry struct {
	mu       sync.RWMutex
	counters map[string]*Counter
	gauges   map[string]*Gauge
	histos   map[string]*Histogram
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Gauge is a metric that can go up or down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	mu     sync.Mutex
}

// Histogram tracks distribution of values.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
	mu      sync.Mutex
}

// NewMetricsRegistry creates a new metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: make(map[string]*Counter),
		gauges:   make(map[string]*Gauge),
		histos:   make(map[string]*Histogram),
	}
}

// NewCounter creates and registers a counter.
func (r *MetricsRegistry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counter{name: name, help: help, labels: labels}
	r.counters[name] = c
	return c
}

// NewGauge creates and registers a gauge.
func (r *MetricsRegistry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[name] = g
	return g
}

// NewHistogram creates and registers a histogram. Nil buckets select
// DefaultBuckets.
func (r *MetricsRegistry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if buckets == nil {
		buckets = DefaultBuckets()
	}

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  labels,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	r.histos[name] = h
	return h
}

// DefaultBuckets returns default histogram buckets for latency in seconds.
func DefaultBuckets() []float64 {
	return []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}
}

// Inc increments a counter by 1.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds a value to the counter. Negative values are ignored.
func (c *Counter) Add(v float64) {
	if v < 0 {
		return
	}
	c.mu.Lock()
	c.value += v
	c.mu.Unlock()
}

// Value returns the counter value.
func (c *Counter) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.Add(-1)
}

// Add adds a value to the gauge.
func (g *Gauge) Add(v float64) {
	g.mu.Lock()
	g.value += v
	g.mu.Unlock()
}

// Value returns the gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, bound := range h.buckets {
		if v <= bound {
			h.counts[i]++
		}
	}
}

// ObserveDuration records the time elapsed since start.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// WritePrometheus writes metrics in Prometheus text format, sorted by name
// within each metric type.
func (r *MetricsRegistry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bw := bufio.NewWriter(w)

	for _, name := range slices.Sorted(maps.Keys(r.counters)) {
		c := r.counters[name]
		c.mu.Lock()
		writeMetric(bw, c.name, "counter", c.help, c.labels, c.value)
		c.mu.Unlock()
	}

	for _, name := range slices.Sorted(maps.Keys(r.gauges)) {
		g := r.gauges[name]
		g.mu.Lock()
		writeMetric(bw, g.name, "gauge", g.help, g.labels, g.value)
		g.mu.Unlock()
	}

	for _, name := range slices.Sorted(maps.Keys(r.histos)) {
		h := r.histos[name]
		h.mu.Lock()
		writeHistogram(bw, h)
		h.mu.Unlock()
	}

	return bw.Flush()
}

func writeMetric(w *bufio.Writer, name, metricType, help string, labels map[string]string, value float64) {
	w.WriteString("# HELP " + name + " " + help + "\n")
	w.WriteString("# TYPE " + name + " " + metricType + "\n")
	w.WriteString(name + formatLabels(labels) + " " + formatFloat(value) + "\n")
}

func writeHistogram(w *bufio.Writer, h *Histogram) {
	w.WriteString("# HELP " + h.name + " " + h.help + "\n")
	w.WriteString("# TYPE " + h.name + " histogram\n")

	// Observe already counts cumulatively.
	for i, bound := range h.buckets {
		labels := copyLabels(h.labels)
		labels["le"] = formatFloat(bound)
		w.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.counts[i], 10) + "\n")
	}

	labels := copyLabels(h.labels)
	labels["le"] = "+Inf"
	w.WriteString(h.name + "_bucket" + formatLabels(labels) + " " + strconv.FormatUint(h.count, 10) + "\n")

	w.WriteString(h.name + "_sum" + formatLabels(h.labels) + " " + formatFloat(h.sum) + "\n")
	w.WriteString(h.name + "_count" + formatLabels(h.labels) + " " + strconv.FormatUint(h.count, 10) + "\n")
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(labels)) {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k + "=" + strconv.Quote(labels[k]))
	}
	sb.WriteByte('}')
	return sb.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return make(map[string]string)
	}
	return maps.Clone(labels)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// RetrievalMetrics groups the metrics recorded by the index and the
// retrieval pipeline.
type RetrievalMetrics struct {
	Registry *MetricsRegistry

	QueriesTotal      *Counter
	QueryErrorsTotal  *Counter
	QueryDuration     *Histogram
	RetrievalsTotal   *Counter
	RetrieveDuration  *Histogram
	EmbedErrorsTotal  *Counter
	BulkInsertedTotal *Counter
	BulkFailedTotal   *Counter
	CacheHitsTotal    *Counter
	CacheMissesTotal  *Counter
	IndexRecords      *Gauge
}

// NewRetrievalMetrics creates a registry with the retrieval metrics.
func NewRetrievalMetrics() *RetrievalMetrics {
	r := NewMetricsRegistry()

	return &RetrievalMetrics{
		Registry: r,

		QueriesTotal:     r.NewCounter("vecrag_queries_total", "Total index queries", nil),
		QueryErrorsTotal: r.NewCounter("vecrag_query_errors_total", "Total failed index queries", nil),
		QueryDuration:    r.NewHistogram("vecrag_query_duration_seconds", "Index query duration", nil, nil),

		RetrievalsTotal:  r.NewCounter("vecrag_retrievals_total", "Total pipeline retrievals", nil),
		RetrieveDuration: r.NewHistogram("vecrag_retrieve_duration_seconds", "Pipeline retrieval duration", nil, nil),
		EmbedErrorsTotal: r.NewCounter("vecrag_embed_errors_total", "Total embedding provider failures", nil),

		BulkInsertedTotal: r.NewCounter("vecrag_bulk_inserted_total", "Records inserted by bulk operations", nil),
		BulkFailedTotal:   r.NewCounter("vecrag_bulk_failed_total", "Records rejected by bulk operations", nil),

		CacheHitsTotal:   r.NewCounter("vecrag_cache_hits_total", "Read-through cache hits", nil),
		CacheMissesTotal: r.NewCounter("vecrag_cache_misses_total", "Read-through cache misses", nil),

		IndexRecords: r.NewGauge("vecrag_index_records", "Records currently held by the index", nil),
	}
}

// RecordQuery records an index query.
func (m *RetrievalMetrics) RecordQuery(duration time.Duration, err error) {
	m.QueriesTotal.Inc()
	m.QueryDuration.Observe(duration.Seconds())
	if err != nil {
		m.QueryErrorsTotal.Inc()
	}
}

// RecordRetrieve records a pipeline retrieval. embedFailed marks failures
// that came from the embedding provider.
func (m *RetrievalMetrics) RecordRetrieve(duration time.Duration, embedFailed bool) {
	m.RetrievalsTotal.Inc()
	m.RetrieveDuration.Observe(duration.Seconds())
	if embedFailed {
		m.EmbedErrorsTotal.Inc()
	}
}

// RecordBulk records the outcome of a bulk insert.
func (m *RetrievalMetrics) RecordBulk(inserted, failed int) {
	m.BulkInsertedTotal.Add(float64(inserted))
	m.BulkFailedTotal.Add(float64(failed))
}

// RecordCacheRead records a read-through cache lookup.
func (m *RetrievalMetrics) RecordCacheRead(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// SetIndexSize sets the index records gauge.
func (m *RetrievalMetrics) SetIndexSize(n int) {
	m.IndexRecords.Set(float64(n))
}
