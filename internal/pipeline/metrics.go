package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-pipeline counters.
type Metrics struct {
	Received  atomic.Uint64
	Processed atomic.Uint64
	Dropped   atomic.Uint64
	Segmented atomic.Uint64
	Written   atomic.Uint64
}

// Stats returns a snapshot of the counters.
func (m *Metrics) Stats() Stats {
	return Stats{
		Received:  m.Received.Load(),
		Processed: m.Processed.Load(),
		Dropped:   m.Dropped.Load(),
		Segmented: m.Segmented.Load(),
		Written:   m.Written.Load(),
	}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Processed.Store(0)
	m.Dropped.Store(0)
	m.Segmented.Store(0)
	m.Written.Store(0)
}

// Stats represents pipeline statistics.
type Stats struct {
	Received  uint64 // frames read from the source
	Processed uint64 // frames every action succeeded on
	Dropped   uint64
	Segmented uint64 // packets the output path split
	Written   uint64 // frames written to the sink
}
