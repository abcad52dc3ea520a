package goGuard

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricSessionCapExceeded
	MetricChallengeRequired
	MetricChallengeIssued
	MetricChallengeSuccess
	MetricChallengeFailure
	MetricChallengeIntercepted
	MetricAuthAllowed
	MetricAuthRejected
	MetricHijackDetected
	MetricImpossibleTravel
	MetricLegacyMigrated
	MetricLegacyReplayRejected
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricSessionCreated
	MetricLogout
	MetricLogoutAll
	MetricCacheError
	MetricNotificationDropped
	MetricRiskCounterError
	// MetricValidateLatency only has a histogram.
	MetricValidateLatency
	metricIDCount
)

// MetricIDCount is the number of defined metric IDs.
const MetricIDCount = int(metricIDCount)

const histBucketCount = 8

// HistogramBounds are the upper bounds of the latency buckets; the last
// bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type latencyHistogram [histBucketCount]atomic.Uint64

func (h *latencyHistogram) observe(d time.Duration) {
	i := sort.Search(len(HistogramBounds), func(i int) bool { return d <= HistogramBounds[i] })
	h[i].Add(1)
}

func (h *latencyHistogram) load() []uint64 {
	out := make([]uint64, histBucketCount)
	for i := range h {
		out[i] = h[i].Load()
	}
	return out
}

// counter is padded to a cache line so hot counters do not false-share.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the validate latency histogram.
// A nil or disabled Metrics ignores every write.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]counter
	// validate is nil unless latency histograms are enabled.
	validate *latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of all metrics. Counters and
// Histograms are empty, never nil, when metrics are off.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	m := &Metrics{enabled: cfg.Enabled}
	if cfg.Enabled && cfg.EnableLatencyHistograms {
		m.validate = new(latencyHistogram)
	}
	return m
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.validate != nil }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d in the histogram of id. Only [MetricValidateLatency]
// has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricValidateLatency {
		return
	}
	m.validate.observe(d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range MetricID(metricIDCount) {
		s.Counters[id] = m.counters[id].Load()
	}
	if m.validate != nil {
		s.Histograms[MetricValidateLatency] = m.validate.load()
	}
	return s
}
