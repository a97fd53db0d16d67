// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus telemetry for peers: session lifecycle, traffic counters and
// per-service queue statistics collected on scrape.

package control

import (
	"sync"

	"github.com/momentics/hioload-tcp/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

// Metrics groups the collectors of one peer. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsOpened prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	framesIn       prometheus.Counter
	framesOut      prometheus.Counter
	services       *serviceCollector
}

// NewMetrics builds unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "opened_total",
			Help: "Sessions established.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "closed_total",
			Help: "Sessions closed, by reason.",
		}, []string{"reason"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "read_bytes_total",
			Help: "Bytes received from sockets.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "written_bytes_total",
			Help: "Bytes written to sockets.",
		}),
		framesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "frames_received_total",
			Help: "Complete frames dispatched to handlers.",
		}),
		framesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "frames_sent_total",
			Help: "Frames queued for sending.",
		}),
		services: newServiceCollector(namespace),
	}
}

// Register adds every collector to reg and reports all failures together.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var err error
	for _, c := range m.collectors() {
		err = multierr.Append(err, reg.Register(c))
	}
	return err
}

// Unregister removes every collector from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsOpened, m.sessionsClosed, m.bytesRead, m.bytesWritten,
		m.framesIn, m.framesOut, m.services,
	}
}

// SessionOpened counts an established session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
}

// SessionClosed counts a closed session under its reason.
func (m *Metrics) SessionClosed(reason api.CloseReason) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(reason.String()).Inc()
}

// BytesRead adds n received bytes.
func (m *Metrics) BytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

// BytesWritten adds n written bytes.
func (m *Metrics) BytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.Add(float64(n))
}

// FrameReceived counts one dispatched frame.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesIn.Inc()
}

// FrameSent counts one queued frame.
func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesOut.Inc()
}

// WatchService samples src on every scrape, labelled with name.
func (m *Metrics) WatchService(name string, src StatsSource) {
	if m == nil || src == nil {
		return
	}
	m.services.watch(name, src)
}

// WatchSessions samples the live session count on every scrape.
func (m *Metrics) WatchSessions(count func() int) {
	if m == nil || count == nil {
		return
	}
	m.services.setSessions(count)
}

// serviceCollector reads ServiceStats lazily so jobs never touch prometheus state.
type serviceCollector struct {
	mu       sync.RWMutex
	sources  map[string]StatsSource
	sessions func() int

	pending  *prometheus.Desc
	capacity *prometheus.Desc
	executed *prometheus.Desc
	panics   *prometheus.Desc
	rate     *prometheus.Desc
	active   *prometheus.Desc
}

func newServiceCollector(namespace string) *serviceCollector {
	label := []string{"service"}
	return &serviceCollector{
		sources:  make(map[string]StatsSource),
		pending:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "pending_jobs"), "Jobs waiting in the queue.", label, nil),
		capacity: prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "capacity"), "Queue capacity.", label, nil),
		executed: prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "executed_jobs_total"), "Jobs executed.", label, nil),
		panics:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "panics_total"), "Jobs that panicked.", label, nil),
		rate:     prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "jobs_per_second"), "Throughput over the last second.", label, nil),
		active:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "session", "active"), "Sessions currently registered.", nil, nil),
	}
}

func (c *serviceCollector) watch(name string, src StatsSource) {
	c.mu.Lock()
	c.sources[name] = src
	c.mu.Unlock()
}

func (c *serviceCollector) setSessions(fn func() int) {
	c.mu.Lock()
	c.sessions = fn
	c.mu.Unlock()
}

func (c *serviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pending
	ch <- c.capacity
	ch <- c.executed
	ch <- c.panics
	ch <- c.rate
	ch <- c.active
}

func (c *serviceCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, src := range c.sources {
		st := src.Stats()
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(st.Pending), name)
		ch <- prometheus.MustNewConstMetric(c.capacity, prometheus.GaugeValue, float64(st.Capacity), name)
		ch <- prometheus.MustNewConstMetric(c.executed, prometheus.CounterValue, float64(st.Executed), name)
		ch <- prometheus.MustNewConstMetric(c.panics, prometheus.CounterValue, float64(st.Panics), name)
		ch <- prometheus.MustNewConstMetric(c.rate, prometheus.GaugeValue, float64(st.JobsPerSecond), name)
	}
	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(c.sessions()))
	}
}
