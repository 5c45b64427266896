package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector()

	c.IncRequestStarted()
	c.IncRequestStarted()
	c.IncRequestCompleted()
	c.IncRequestAbandoned()
	c.IncBodyTooLarge()
	c.IncProtocolViolation()
	c.IncProtocolViolation()
	c.IncHandlerFailure()
	c.IncHandlerPanic()
	c.IncStreamAborted()
	c.IncSynthesized(500)
	c.IncSynthesized(500)
	c.IncSynthesized(413)
	c.AddBytesIn(10)
	c.AddBytesIn(-3)
	c.AddBytesOut(7)

	s := c.Snapshot()

	if s.RequestsStarted != 2 {
		t.Errorf("RequestsStarted = %d, want 2", s.RequestsStarted)
	}
	if s.RequestsCompleted != 1 {
		t.Errorf("RequestsCompleted = %d, want 1", s.RequestsCompleted)
	}
	if s.RequestsAbandoned != 1 {
		t.Errorf("RequestsAbandoned = %d, want 1", s.RequestsAbandoned)
	}
	if s.BodyTooLarge != 1 {
		t.Errorf("BodyTooLarge = %d, want 1", s.BodyTooLarge)
	}
	if s.ProtocolViolations != 2 {
		t.Errorf("ProtocolViolations = %d, want 2", s.ProtocolViolations)
	}
	if s.HandlerFailures != 1 || s.HandlerPanics != 1 {
		t.Errorf("HandlerFailures = %d, HandlerPanics = %d", s.HandlerFailures, s.HandlerPanics)
	}
	if s.StreamsAborted != 1 {
		t.Errorf("StreamsAborted = %d, want 1", s.StreamsAborted)
	}
	if s.Synthesized[500] != 2 || s.Synthesized[413] != 1 {
		t.Errorf("Synthesized = %v", s.Synthesized)
	}
	if s.BytesIn != 10 {
		t.Errorf("BytesIn = %d, want 10 (negative ignored)", s.BytesIn)
	}
	if s.BytesOut != 7 {
		t.Errorf("BytesOut = %d, want 7", s.BytesOut)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	// None of these may panic
	c.IncRequestStarted()
	c.IncRequestCompleted()
	c.IncRequestAbandoned()
	c.IncBodyTooLarge()
	c.IncProtocolViolation()
	c.IncHandlerFailure()
	c.IncHandlerPanic()
	c.IncStreamAborted()
	c.IncSynthesized(500)
	c.AddBytesIn(1)
	c.AddBytesOut(1)
	c.SetPoolGauges(func() (int, int, int) { return 1, 1, 1 })

	s := c.Snapshot()
	if s.RequestsStarted != 0 || s.Synthesized == nil {
		t.Errorf("nil snapshot = %+v", s)
	}
}

func TestCollector_PoolGauges(t *testing.T) {
	c := NewCollector()
	c.SetPoolGauges(func() (int, int, int) { return 4, 3, 2 })

	s := c.Snapshot()
	if s.Workers != 4 || s.Busy != 3 || s.Queued != 2 {
		t.Errorf("gauges = %d/%d/%d, want 4/3/2", s.Workers, s.Busy, s.Queued)
	}
}

func TestCollector_SnapshotIsolation(t *testing.T) {
	c := NewCollector()
	c.IncSynthesized(500)

	s := c.Snapshot()
	s.Synthesized[500] = 99

	if got := c.Snapshot().Synthesized[500]; got != 1 {
		t.Errorf("snapshot mutation leaked into collector: %d", got)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.IncRequestStarted()
			c.AddBytesOut(2)
			_ = c.Snapshot()
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.RequestsStarted != 50 || s.BytesOut != 100 {
		t.Errorf("RequestsStarted = %d, BytesOut = %d", s.RequestsStarted, s.BytesOut)
	}
}
