// Package metrics provides adapter-wide metrics collection.
//
// The Collector accumulates counters for the lifetime of an adapter. It is a
// leaf package with no internal dependencies; pool gauges are read through a
// callback at snapshot time rather than recorded live.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all adapter metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Request lifecycle
	RequestsStarted   int64 `json:"requests_started" yaml:"requests_started"`
	RequestsCompleted int64 `json:"requests_completed" yaml:"requests_completed"`
	RequestsAbandoned int64 `json:"requests_abandoned" yaml:"requests_abandoned"`

	// Failures
	BodyTooLarge       int64 `json:"body_too_large" yaml:"body_too_large"`
	ProtocolViolations int64 `json:"protocol_violations" yaml:"protocol_violations"`
	HandlerFailures    int64 `json:"handler_failures" yaml:"handler_failures"`
	HandlerPanics      int64 `json:"handler_panics" yaml:"handler_panics"`
	StreamsAborted     int64 `json:"streams_aborted" yaml:"streams_aborted"`

	// Synthesized responses keyed by status code
	Synthesized map[int]int64 `json:"synthesized" yaml:"synthesized"`

	// Payload volume
	BytesIn  int64 `json:"bytes_in" yaml:"bytes_in"`
	BytesOut int64 `json:"bytes_out" yaml:"bytes_out"`

	// Pool gauges (read at snapshot time)
	Workers int `json:"workers" yaml:"workers"`
	Busy    int `json:"busy" yaml:"busy"`
	Queued  int `json:"queued" yaml:"queued"`
}

// PoolGauges reports the current worker pool occupancy.
type PoolGauges func() (workers, busy, queued int)

// Collector accumulates adapter metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	requestsStarted   int64
	requestsCompleted int64
	requestsAbandoned int64

	bodyTooLarge       int64
	protocolViolations int64
	handlerFailures    int64
	handlerPanics      int64
	streamsAborted     int64

	synthesized map[int]int64

	bytesIn  int64
	bytesOut int64

	gauges PoolGauges
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		synthesized: make(map[int]int64),
	}
}

// SetPoolGauges installs the callback used to read pool occupancy.
func (c *Collector) SetPoolGauges(g PoolGauges) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.gauges = g
	c.mu.Unlock()
}

// --- Request lifecycle ---

// IncRequestStarted records a request entering the adapter.
func (c *Collector) IncRequestStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsStarted++
	c.mu.Unlock()
}

// IncRequestCompleted records a request whose handler finished.
func (c *Collector) IncRequestCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsCompleted++
	c.mu.Unlock()
}

// IncRequestAbandoned records a body iterator closed before completion.
func (c *Collector) IncRequestAbandoned() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsAbandoned++
	c.mu.Unlock()
}

// --- Failures ---

// IncBodyTooLarge records a request body that exceeded the cap.
func (c *Collector) IncBodyTooLarge() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bodyTooLarge++
	c.mu.Unlock()
}

// IncProtocolViolation records a handler breaking the message protocol.
func (c *Collector) IncProtocolViolation() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protocolViolations++
	c.mu.Unlock()
}

// IncHandlerFailure records a handler returning an error.
func (c *Collector) IncHandlerFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.handlerFailures++
	c.mu.Unlock()
}

// IncHandlerPanic records a recovered handler panic.
func (c *Collector) IncHandlerPanic() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.handlerPanics++
	c.mu.Unlock()
}

// IncStreamAborted records a chunk stream terminated abnormally.
func (c *Collector) IncStreamAborted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsAborted++
	c.mu.Unlock()
}

// IncSynthesized records a response synthesized by the adapter.
func (c *Collector) IncSynthesized(status int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.synthesized[status]++
	c.mu.Unlock()
}

// --- Payload volume ---

// AddBytesIn records request body bytes delivered to a handler.
func (c *Collector) AddBytesIn(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.bytesIn += int64(n)
	c.mu.Unlock()
}

// AddBytesOut records response body bytes handed to the host.
func (c *Collector) AddBytesOut(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.bytesOut += int64(n)
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Synthesized: map[int]int64{}}
	}
	c.mu.Lock()
	synthesized := make(map[int]int64, len(c.synthesized))
	for k, v := range c.synthesized {
		synthesized[k] = v
	}
	s := Snapshot{
		RequestsStarted:   c.requestsStarted,
		RequestsCompleted: c.requestsCompleted,
		RequestsAbandoned: c.requestsAbandoned,

		BodyTooLarge:       c.bodyTooLarge,
		ProtocolViolations: c.protocolViolations,
		HandlerFailures:    c.handlerFailures,
		HandlerPanics:      c.handlerPanics,
		StreamsAborted:     c.streamsAborted,

		Synthesized: synthesized,

		BytesIn:  c.bytesIn,
		BytesOut: c.bytesOut,
	}
	gauges := c.gauges
	c.mu.Unlock()

	// Gauges are read outside mu; the pool has its own lock.
	if gauges != nil {
		s.Workers, s.Busy, s.Queued = gauges()
	}
	return s
}
