// Package usage keeps in-process request metrics: a bounded window of turn
// latencies plus token and error counters. Observations are mirrored into
// Prometheus collectors when a registerer is supplied.
package usage

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultCapacity is the number of latency samples kept.
const DefaultCapacity = 1000

// Snapshot is a point-in-time view of the metrics. Durations are in milliseconds.
type Snapshot struct {
	LatencyP50 int64   `json:"latencyP50"`
	LatencyP95 int64   `json:"latencyP95"`
	TokenIn    int64   `json:"tokenIn"`
	TokenOut   int64   `json:"tokenOut"`
	ErrorRate  float64 `json:"errorRate"`
	Requests   int64   `json:"requests"`
	Uptime     int64   `json:"uptime"`
}

// Metrics is safe for concurrent use.
type Metrics struct {
	mu       sync.Mutex
	samples  []time.Duration
	next     int
	full     bool
	tokenIn  int64
	tokenOut int64
	errors   int64
	requests int64
	start    time.Time

	now  func() time.Time
	prom *collectors
}

// Option configures Metrics.
type Option func(*Metrics)

// WithClock overrides the time source used for uptime.
func WithClock(now func() time.Time) Option {
	return func(m *Metrics) { m.now = now }
}

// WithCapacity overrides the latency window size.
func WithCapacity(n int) Option {
	return func(m *Metrics) {
		if n > 0 {
			m.samples = make([]time.Duration, n)
		}
	}
}

// WithRegisterer exports the metrics through reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Metrics) { m.prom = newCollectors(reg) }
}

// New creates an empty Metrics.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		samples: make([]time.Duration, DefaultCapacity),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.start = m.now()
	return m
}

// RecordRequest records a successful turn.
func (m *Metrics) RecordRequest(latency time.Duration, tokensIn, tokensOut int) {
	m.mu.Lock()
	m.requests++
	m.tokenIn += int64(tokensIn)
	m.tokenOut += int64(tokensOut)
	m.mu.Unlock()
	m.observe(latency)

	if m.prom != nil {
		m.prom.tokens.WithLabelValues("in").Add(float64(tokensIn))
		m.prom.tokens.WithLabelValues("out").Add(float64(tokensOut))
	}
}

// RecordError records a failed turn.
func (m *Metrics) RecordError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.errors.Inc()
	}
}

// RecordFailure records a failed turn together with how long it ran.
func (m *Metrics) RecordFailure(latency time.Duration) {
	m.RecordError()
	m.observe(latency)
}

// observe adds a latency sample, overwriting the oldest once the window is full.
func (m *Metrics) observe(latency time.Duration) {
	m.mu.Lock()
	m.samples[m.next] = latency
	m.next = (m.next + 1) % len(m.samples)
	if m.next == 0 {
		m.full = true
	}
	m.mu.Unlock()

	if m.prom != nil {
		m.prom.latency.Observe(latency.Seconds())
	}
}

// Snapshot returns the current percentiles and counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	n := m.next
	if m.full {
		n = len(m.samples)
	}
	sorted := make([]time.Duration, n)
	copy(sorted, m.samples[:n])
	s := Snapshot{
		TokenIn:  m.tokenIn,
		TokenOut: m.tokenOut,
		Requests: m.requests,
		Uptime:   m.now().Sub(m.start).Milliseconds(),
	}
	if m.requests > 0 {
		s.ErrorRate = float64(m.errors) / float64(m.requests)
	}
	m.mu.Unlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	s.LatencyP50 = percentile(sorted, 0.5).Milliseconds()
	s.LatencyP95 = percentile(sorted, 0.95).Milliseconds()
	return s
}

// Reset clears every sample and counter and restarts the uptime clock.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = make([]time.Duration, len(m.samples))
	m.next = 0
	m.full = false
	m.tokenIn, m.tokenOut = 0, 0
	m.errors, m.requests = 0, 0
	m.start = m.now()
}

// percentile picks sorted[floor(n*q)].
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)) * q)
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}
