package vm

import (
	"sort"

	"github.com/samber/lo"
)

// RAM is a flat byte buffer plus a set of live allocated ranges, grounded on
// original_source/src/memory.rs. There is no Go teacher equivalent for scoped
// allocation (KTStephano-GVM has no RAM model at all), so the first-fit,
// address-ordered, non-coalescing algorithm is carried straight over from the
// source. github.com/samber/lo drives two of the three operations this file
// needs: Alloc's forward scan for a large-enough gap is a left fold over the
// sorted ranges (lo.Reduce, below) and Release's removal of a handle's range
// is a filter (lo.Filter). Sorting itself has no lo equivalent - lo ships no
// generic Sort - so both Alloc's and library.go's WriteAsLibrary's orderings
// stay on stdlib sort.Slice.
//
// Address 0 is never handed out: it is reserved so a zero Word can always be
// read as "no allocation" by callers (e.g. an uninitialized pointer operand).
type RAM struct {
	buf    []byte
	ranges []ramRange // sorted by start, ascending; kept sorted after every Alloc/Dealloc
}

type ramRange struct {
	start, end Word // [start, end)
}

// allocScan is the accumulator Alloc's lo.Reduce fold carries forward: cursor
// is the best candidate gap address found so far, found latches true once a
// large-enough gap is confirmed so later ranges are left untouched - the fold
// equivalent of the scan loop's break.
type allocScan struct {
	cursor Word
	found  bool
}

// NewRAM allocates a RAM of the given total size. size must be representable
// in a Word; address 0 is reserved so usable space is [1, size).
func NewRAM(size Word) *RAM {
	return &RAM{buf: make([]byte, size)}
}

func (r *RAM) Size() Word { return Word(len(r.buf)) }

// AllocatedRam is a handle to a live range of RAM. Go has no Drop, so callers
// must call Release when finished; RAM remains the sole owner of the
// underlying buffer and range bookkeeping (see DESIGN.md Open Question 3).
type AllocatedRam struct {
	owner      *RAM
	start, end Word
}

func (a *AllocatedRam) Start() Word { return a.start }
func (a *AllocatedRam) End() Word   { return a.end }
func (a *AllocatedRam) Size() Word  { return a.end - a.start }

// Alloc reserves the first address-ordered gap of at least size bytes,
// starting the search at address 1. Returns RamOutOfMemory if no gap fits.
func (r *RAM) Alloc(size Word) (*AllocatedRam, error) {
	if size == 0 {
		return &AllocatedRam{owner: r, start: 1, end: 1}, nil
	}

	sort.Slice(r.ranges, func(i, j int) bool { return r.ranges[i].start < r.ranges[j].start })

	// get_free_index's scan as a left fold: walk the sorted ranges looking
	// for a gap of at least size bytes before the next occupied range, and
	// stop updating the candidate address once one is found.
	scan := lo.Reduce(r.ranges, func(acc allocScan, rg ramRange, _ int) allocScan {
		if acc.found {
			return acc
		}
		if rg.start > acc.cursor && rg.start-acc.cursor >= size {
			return allocScan{cursor: acc.cursor, found: true}
		}
		if rg.end > acc.cursor {
			acc.cursor = rg.end
		}
		return acc
	}, allocScan{cursor: 1})
	cursor := scan.cursor
	if Word(len(r.buf))-cursor < size {
		return nil, newRamError(RamOutOfMemory)
	}

	rg := ramRange{start: cursor, end: cursor + size}
	r.ranges = append(r.ranges, rg)
	sort.Slice(r.ranges, func(i, j int) bool { return r.ranges[i].start < r.ranges[j].start })
	return &AllocatedRam{owner: r, start: rg.start, end: rg.end}, nil
}

// Dealloc releases the handle's range. Equivalent to Release; kept as a
// separate name because the syscall-level Deallocate operation (§6.3) and
// the handle-level cleanup read more naturally under different verbs.
func (r *RAM) Dealloc(a *AllocatedRam) {
	a.Release()
}

// Release removes this handle's range from the owning RAM's live set. Safe
// to call at most once; calling it twice is a caller bug (mirrors the
// source's single ownership, no reference counting).
func (a *AllocatedRam) Release() {
	if a.owner == nil {
		return
	}
	a.owner.ranges = lo.Filter(a.owner.ranges, func(rg ramRange, _ int) bool {
		return !(rg.start == a.start && rg.end == a.end)
	})
	a.owner = nil
}

// DeallocateAll releases every live range, used when a program exits.
func (r *RAM) DeallocateAll() {
	r.ranges = r.ranges[:0]
}

func (r *RAM) checkBounds(addr, size Word) error {
	if addr == 0 {
		return newSegFault(addr)
	}
	end := uint32(addr) + uint32(size)
	if end > uint32(len(r.buf)) {
		return newRamError(RamIndexOutOfBounds)
	}
	return nil
}

// inAnyRange reports whether [addr, addr+size) lies entirely within a single
// live allocated range - the "checked" access contract.
func (r *RAM) inAnyRange(addr, size Word) bool {
	end := addr + size
	for _, rg := range r.ranges {
		if addr >= rg.start && end <= rg.end {
			return true
		}
	}
	return false
}

// ReadChecked reads size bytes at addr, failing with SegmentationFault if the
// range is not wholly inside a live allocation.
func (r *RAM) ReadChecked(addr, size Word) ([]byte, error) {
	if err := r.checkBounds(addr, size); err != nil {
		return nil, err
	}
	if !r.inAnyRange(addr, size) {
		return nil, newSegFault(addr)
	}
	return r.buf[addr : addr+size], nil
}

// WriteChecked writes data at addr, failing with SegmentationFault if the
// range is not wholly inside a live allocation.
func (r *RAM) WriteChecked(addr Word, data []byte) error {
	size := Word(len(data))
	if err := r.checkBounds(addr, size); err != nil {
		return err
	}
	if !r.inAnyRange(addr, size) {
		return newSegFault(addr)
	}
	copy(r.buf[addr:addr+size], data)
	return nil
}

// ReadUnchecked and WriteUnchecked bypass the live-range check (ReadUnchecked
// serves instruction fetch, the breakpoint REPL's memory dump and the window
// framebuffer) but still bounds-check against the buffer itself.
func (r *RAM) ReadUnchecked(addr, size Word) ([]byte, error) {
	if err := r.checkBounds(addr, size); err != nil {
		return nil, err
	}
	return r.buf[addr : addr+size], nil
}

func (r *RAM) WriteUnchecked(addr Word, data []byte) error {
	if err := r.checkBounds(addr, Word(len(data))); err != nil {
		return err
	}
	copy(r.buf[addr:addr+Word(len(data))], data)
	return nil
}

// ReadWordChecked/WriteWordChecked are the common case of a single Word
// access through a live allocation.
func (r *RAM) ReadWordChecked(addr Word) (Word, error) {
	b, err := r.ReadChecked(addr, wordSize)
	if err != nil {
		return 0, err
	}
	return bytesToWord(b), nil
}

func (r *RAM) WriteWordChecked(addr Word, v Word) error {
	b := wordToBytes(v)
	return r.WriteChecked(addr, b[:])
}
