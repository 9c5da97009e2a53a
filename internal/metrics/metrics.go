package metrics

import (
	"sort"
	"sync"
	"time"
)

// FailureKind names why a request ended without a relayed response.
type FailureKind string

const (
	FailureConnection FailureKind = "connection"
	FailureUpstream   FailureKind = "upstream"
	FailureMalformed  FailureKind = "malformed"
	FailureCanceled   FailureKind = "canceled"
)

const maxResponseSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      int64
	responses     int64
	bytesRelayed  int64
	failures      map[FailureKind]int64
	statusCodes   map[int]int64
	responseTimes []time.Duration
	healthy       bool
	healthKnown   bool
	startTime     time.Time
}

type Snapshot struct {
	Destination   string                `json:"destination"`
	Uptime        time.Duration         `json:"uptime"`
	TotalRequests int64                 `json:"total_requests"`
	Responses     int64                 `json:"responses"`
	BytesRelayed  int64                 `json:"bytes_relayed"`
	Failures      map[FailureKind]int64 `json:"failures"`
	StatusCodes   map[int]int64         `json:"status_codes"`
	Healthy       *bool                 `json:"healthy,omitempty"`
	AvgResponse   time.Duration         `json:"avg_response"`
	P50Response   time.Duration         `json:"p50_response"`
	P95Response   time.Duration         `json:"p95_response"`
	P99Response   time.Duration         `json:"p99_response"`
}

func (m *Metrics) IncrementRequests() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests++
}

func (m *Metrics) RecordResponse(duration time.Duration, statusCode int, bytes int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responses++
	m.bytesRelayed += bytes
	m.statusCodes[statusCode]++

	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[1:]
	}
}

func (m *Metrics) RecordFailure(kind FailureKind) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures[kind]++
}

func (m *Metrics) UpdateHealthStatus(healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthy = healthy
	m.healthKnown = true
}

func (m *Metrics) Snapshot(destination string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Destination:   destination,
		Uptime:        time.Since(m.startTime),
		TotalRequests: m.requests,
		Responses:     m.responses,
		BytesRelayed:  m.bytesRelayed,
		Failures:      make(map[FailureKind]int64, len(m.failures)),
		StatusCodes:   make(map[int]int64, len(m.statusCodes)),
	}

	for kind, count := range m.failures {
		snap.Failures[kind] = count
	}
	for code, count := range m.statusCodes {
		snap.StatusCodes[code] = count
	}

	if m.healthKnown {
		healthy := m.healthy
		snap.Healthy = &healthy
	}

	if len(m.responseTimes) > 0 {
		sorted := make([]time.Duration, len(m.responseTimes))
		copy(sorted, m.responseTimes)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i] < sorted[j]
		})

		snap.AvgResponse = average(sorted)
		snap.P50Response = percentile(sorted, 0.50)
		snap.P95Response = percentile(sorted, 0.95)
		snap.P99Response = percentile(sorted, 0.99)
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		failures:    make(map[FailureKind]int64),
		statusCodes: make(map[int]int64),
		startTime:   time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
