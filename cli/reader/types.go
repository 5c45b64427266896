// Package reader provides the read-side data access layer for the syncbridge
// CLI. Read-only commands talk to a running server exclusively through it.
package reader

import (
	"github.com/pithecene-io/syncbridge/metrics"
	"github.com/pithecene-io/syncbridge/pool"
)

// StatsPath is where a serving process exposes Stats as JSON.
const StatsPath = "/debug/stats"

// Stats is the /debug/stats payload.
type Stats struct {
	Version string           `json:"version" yaml:"version"`
	Host    string           `json:"host" yaml:"host"`
	App     string           `json:"app" yaml:"app"`
	Uptime  string           `json:"uptime" yaml:"uptime"`
	Metrics metrics.Snapshot `json:"metrics" yaml:"metrics"`
	Pool    pool.Stats       `json:"pool" yaml:"pool"`
}

// InFlight is the number of requests started but not yet completed.
func (s *Stats) InFlight() int64 {
	return s.Metrics.RequestsStarted - s.Metrics.RequestsCompleted
}

// Failures is the number of requests that ended with a synthesized error
// response or an aborted stream.
func (s *Stats) Failures() int64 {
	m := s.Metrics
	return m.BodyTooLarge + m.ProtocolViolations + m.HandlerFailures
}
