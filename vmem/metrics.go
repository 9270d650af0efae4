package vmem

import "sync/atomic"

// Metrics accumulates translator activity counters, the Core B analogue of
// uthread.Metrics.
type Metrics struct {
	reads      atomic.Int64
	writes     atomic.Int64
	faults     atomic.Int64
	evictions  atomic.Int64
	outOfRange atomic.Int64
}

// Reads reports the total number of Read calls.
func (m *Metrics) Reads() int64 { return m.reads.Load() }

// Writes reports the total number of Write calls.
func (m *Metrics) Writes() int64 { return m.writes.Load() }

// Faults reports the total number of page-table misses resolved (a zero
// entry that required a frame allocation).
func (m *Metrics) Faults() int64 { return m.faults.Load() }

// Evictions reports the total number of times the eviction strategy fired.
func (m *Metrics) Evictions() int64 { return m.evictions.Load() }

// OutOfRange reports the total number of accesses rejected for an address
// outside VirtualMemorySize.
func (m *Metrics) OutOfRange() int64 { return m.outOfRange.Load() }
