// Package translate implements the Translator of spec.md §4.B.3: the
// page-table walk that resolves a virtual address to a physical frame,
// allocating and swapping pages on demand via the Frame Selector.
package translate

import (
	"github.com/oskern/oskern/vmem/backend"
	"github.com/oskern/oskern/vmem/internal/addrsplit"
	"github.com/oskern/oskern/vmem/internal/alloc"
)

// Translator holds everything VMFindAddress needs: the physical device, the
// frame selector, and the compile-time geometry.
type Translator struct {
	PM                backend.PhysicalMemory
	Selector          *alloc.Selector
	OffsetWidth       int
	Depth             int
	PageSize          int
	VirtualMemorySize uint64

	// OnFault, if set, is invoked each time find() resolves a zero page-table
	// entry (a miss requiring frame allocation).
	OnFault func()
}

// ClearFrame zeroes every entry of frame, the Go equivalent of the
// original's clearTable.
func (t *Translator) ClearFrame(frame uint64) {
	base := frame * uint64(t.PageSize)
	for i := uint64(0); i < uint64(t.PageSize); i++ {
		t.PM.Write(base+i, 0)
	}
}

// Initialize clears the root table frame, the sole action of VMinitialize.
func (t *Translator) Initialize() {
	t.ClearFrame(0)
}

// find resolves virtualAddress to (frame, offset), allocating table frames
// along the way as spec.md §4.B.3 describes. ok is false only for an
// out-of-range address.
func (t *Translator) find(virtualAddress uint64) (frame uint64, offset uint64, ok bool) {
	if virtualAddress >= t.VirtualMemorySize {
		return 0, 0, false
	}
	indices, off := addrsplit.Split(virtualAddress, t.OffsetWidth, t.Depth)

	addr := make([]uint64, t.Depth+1)
	for i := 1; i <= t.Depth; i++ {
		parent := addr[i-1]
		entryAddr := parent*uint64(t.PageSize) + indices[i-1]
		v := t.PM.Read(entryAddr)
		if v == 0 {
			if t.OnFault != nil {
				t.OnFault()
			}
			chosen := t.Selector.Select(parent)
			t.ClearFrame(chosen)
			if i == t.Depth {
				pageIndex := virtualAddress >> uint(t.OffsetWidth)
				t.PM.Restore(chosen, pageIndex)
			}
			t.PM.Write(entryAddr, int64(chosen))
			v = int64(chosen)
		}
		addr[i] = uint64(v)
	}
	return addr[t.Depth], off, true
}

// Read implements VMread: returns the word stored at virtualAddress, and
// false if virtualAddress is out of range.
func (t *Translator) Read(virtualAddress uint64) (int64, bool) {
	frame, offset, ok := t.find(virtualAddress)
	if !ok {
		return 0, false
	}
	return t.PM.Read(frame*uint64(t.PageSize) + offset), true
}

// Write implements VMwrite: stores value at virtualAddress, returning false
// if virtualAddress is out of range.
func (t *Translator) Write(virtualAddress uint64, value int64) bool {
	frame, offset, ok := t.find(virtualAddress)
	if !ok {
		return false
	}
	t.PM.Write(frame*uint64(t.PageSize)+offset, value)
	return true
}
