// Package vmem implements the simulated hierarchical virtual-memory
// translator: a page-table walker over an emulated physical RAM with a
// fixed number of frames, allocating frames on demand and swapping pages
// through a backing store. See SPEC_FULL.md §4.B and DESIGN.md.
package vmem

import (
	"github.com/oskern/oskern/vmem/backend"
	"github.com/oskern/oskern/vmem/internal/alloc"
	"github.com/oskern/oskern/vmem/internal/logging"
	"github.com/oskern/oskern/vmem/internal/translate"
)

// Translator is the public handle spec.md §6 exposes: Initialize, Read,
// Write. Construct one with New.
type Translator struct {
	cfg     Config
	pm      backend.PhysicalMemory
	t       *translate.Translator
	metrics *Metrics
	logger  *logging.Logger
}

// New builds a Translator over pm using cfg's geometry. pm is the external
// physical-memory device spec.md §4.B.3 treats as given; pass a
// *backend.Memory for a concrete, tested implementation.
func New(cfg Config, pm backend.PhysicalMemory) *Translator {
	metrics := &Metrics{}
	selector := &alloc.Selector{
		PM:          pm,
		OffsetWidth: cfg.OffsetWidth,
		PageSize:    cfg.PageSize(),
		Depth:       cfg.TablesDepth,
		NumFrames:   cfg.NumFrames,
		WeightEven:  cfg.WeightEven,
		WeightOdd:   cfg.WeightOdd,
		OnEvict:     func(uint64, uint64) { metrics.evictions.Add(1) },
	}
	inner := &translate.Translator{
		PM:                pm,
		Selector:          selector,
		OffsetWidth:       cfg.OffsetWidth,
		Depth:             cfg.TablesDepth,
		PageSize:          cfg.PageSize(),
		VirtualMemorySize: cfg.VirtualMemorySize(),
		OnFault:           func() { metrics.faults.Add(1) },
	}
	return &Translator{cfg: cfg, pm: pm, t: inner, metrics: metrics, logger: logging.Default()}
}

// Initialize clears the root page-table frame. Must be called once before
// any Read or Write.
func (tr *Translator) Initialize() error {
	tr.t.Initialize()
	return nil
}

// Read returns the word stored at virtualAddress, and false if
// virtualAddress is out of range.
func (tr *Translator) Read(virtualAddress uint64) (int64, bool) {
	tr.metrics.reads.Add(1)
	v, ok := tr.t.Read(virtualAddress)
	if !ok {
		tr.metrics.outOfRange.Add(1)
		tr.logger.Println(newAddressError("read", virtualAddress).Error())
	}
	return v, ok
}

// Write stores value at virtualAddress, returning false if virtualAddress
// is out of range.
func (tr *Translator) Write(virtualAddress uint64, value int64) bool {
	tr.metrics.writes.Add(1)
	ok := tr.t.Write(virtualAddress, value)
	if !ok {
		tr.metrics.outOfRange.Add(1)
		tr.logger.Println(newAddressError("write", virtualAddress).Error())
	}
	return ok
}

// Metrics returns the counters accumulated by this Translator.
func (tr *Translator) Metrics() *Metrics { return tr.metrics }
