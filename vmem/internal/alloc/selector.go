// Package alloc implements the Frame Selector of spec.md §4.B.2: the
// three-strategy search a page-table miss falls through in strict priority
// order. Grounded line-for-line on the original's findUnused/findEmptyFrame
// recursive tree walks.
package alloc

import "github.com/oskern/oskern/vmem/backend"

// Selector walks the page-table tree rooted at frame 0 to satisfy a frame
// allocation request.
type Selector struct {
	PM          backend.PhysicalMemory
	OffsetWidth int
	PageSize    int
	Depth       int
	NumFrames   int
	WeightEven  int
	WeightOdd   int

	// OnEvict, if set, is invoked whenever strategy 3 (eviction) fires.
	OnEvict func(frame, pageIndex uint64)
}

type walkState struct {
	maxFrame         uint64
	maxSum           int
	evictedPageIndex uint64
	evictedFrame     uint64
	evictedOffset    uint64
	evictedParent    uint64
}

func (s *Selector) parity(v uint64) int {
	if v&1 == 1 {
		return s.WeightOdd
	}
	return s.WeightEven
}

// findUnused walks the whole tree once, tracking both the high-water mark
// (the largest frame index referenced anywhere) and the worst-weighted leaf
// (the eviction candidate), exactly as the original's single-pass
// findUnused does.
func (s *Selector) findUnused(frame, curPageIndex uint64, curSum int, curDepth int, w *walkState) {
	if curDepth == s.Depth {
		return
	}
	for offset := uint64(0); offset < uint64(s.PageSize); offset++ {
		v := s.PM.Read(frame*uint64(s.PageSize) + offset)
		if v == 0 {
			continue
		}
		temp := uint64(v)
		if temp > w.maxFrame {
			w.maxFrame = temp
		}
		tempSum := curSum + s.parity(temp)
		tempPageIndex := (curPageIndex << uint(s.OffsetWidth)) + offset
		if curDepth == s.Depth-1 {
			tempSum += s.parity(tempPageIndex)
			if tempSum > w.maxSum || (tempSum == w.maxSum && tempPageIndex < w.evictedPageIndex) {
				w.maxSum = tempSum
				w.evictedPageIndex = tempPageIndex
				w.evictedFrame = temp
				w.evictedOffset = offset
				w.evictedParent = frame
			}
		}
		s.findUnused(temp, tempPageIndex, tempSum, curDepth+1, w)
	}
}

// findEmptyFrame walks the tree looking for a table frame with no non-zero
// entries at all (a table nobody has populated), excluding doNotEvict (the
// frame the in-progress translation walk must not cannibalize). Matches the
// original exactly, including its quirk: when doNotEvict is the root
// (filling the first page-table level), the search always fails immediately
// since every candidate is reachable only through the root.
func (s *Selector) findEmptyFrame(frame, parent, frameOffset uint64, curDepth int, doNotEvict uint64) (uint64, bool) {
	if curDepth == s.Depth || frame == doNotEvict {
		return 0, false
	}
	empty := true
	for offset := uint64(0); offset < uint64(s.PageSize); offset++ {
		v := s.PM.Read(frame*uint64(s.PageSize) + offset)
		if v == 0 {
			continue
		}
		empty = false
		if found, ok := s.findEmptyFrame(uint64(v), frame, offset, curDepth+1, doNotEvict); ok {
			return found, true
		}
	}
	if empty {
		s.PM.Write(parent*uint64(s.PageSize)+frameOffset, 0)
		return frame, true
	}
	return 0, false
}

// Select returns a frame to link into the page table in place of a zero
// entry discovered while resolving a miss, trying strategies in this order:
// reclaim an empty table frame, bump the high-water mark, evict the
// worst-weighted leaf. doNotEvict is the frame that owns
// the entry currently being filled, preserved across the search so the
// partially built walk is never itself reclaimed.
func (s *Selector) Select(doNotEvict uint64) uint64 {
	w := &walkState{maxSum: -1}
	s.findUnused(0, 0, 0, 0, w)

	if empty, ok := s.findEmptyFrame(0, 0, 0, 0, doNotEvict); ok {
		return empty
	}

	if candidate := w.maxFrame + 1; candidate < uint64(s.NumFrames) {
		return candidate
	}

	s.PM.Evict(w.evictedFrame, w.evictedPageIndex)
	s.PM.Write(w.evictedParent*uint64(s.PageSize)+w.evictedOffset, 0)
	if s.OnEvict != nil {
		s.OnEvict(w.evictedFrame, w.evictedPageIndex)
	}
	return w.evictedFrame
}
