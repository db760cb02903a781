package querycache

import (
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
)

// Stats describes the fetch activity of one key.
type Stats struct {
	// Fetches counts applied responses, failed ones included.
	Fetches  int
	Failures int
	// Dropped counts responses discarded because a newer one was already applied.
	Dropped int
	// AvgFetch is the average latency over the most recent applied fetches.
	AvgFetch time.Duration
}

// monitor keeps per-key fetch stats. Guarded by the owning cache's mutex.
type monitor struct {
	fetches  int
	failures int
	drops    int
	latency  *movingaverage.MovingAverage
}

func newMonitor(window int) *monitor {
	return &monitor{
		latency: movingaverage.New(window),
	}
}

func (m *monitor) fetched(elapsed time.Duration, err error) {
	m.fetches++
	if err != nil {
		m.failures++
	}
	m.latency.Add(float64(elapsed/time.Microsecond) / 1000.0)
}

func (m *monitor) dropped() {
	m.drops++
}

func (m *monitor) snapshot() Stats {
	s := Stats{
		Fetches:  m.fetches,
		Failures: m.failures,
		Dropped:  m.drops,
	}
	if m.fetches > 0 {
		s.AvgFetch = time.Duration(m.latency.Avg() * float64(time.Millisecond))
	}
	return s
}
