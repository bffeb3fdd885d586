// Package fixedheap implements a fixed-capacity, in-place memory allocator: it manages
// sub-allocations within a caller-supplied byte region and never requests memory of its
// own. All bookkeeping lives inline in the region as block headers, so a region can be
// copied or persisted as raw bytes and remains interpretable.
//
// The allocator does not own the region it works on- the caller is responsible for keeping
// the backing memory alive and unmodified for as long as the allocator is in use. An
// *Allocator is a thin handle: copies of the pointer share all allocation state.
//
// No internal synchronization is performed. Consumers that share an Allocator between
// goroutines must provide their own mutual exclusion.
package fixedheap

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vkngwrapper/fixedheap/memutils"
	"golang.org/x/exp/slog"
)

// DefaultAlignment is the alignment applied when CreateOptions.Alignment is left at 0.
// It matches the machine word size on 64-bit targets.
const DefaultAlignment uint = 8

// CreateOptions contains optional settings when creating an Allocator
type CreateOptions struct {
	// Alignment is the alignment requirement in bytes for block payloads. It must be a
	// power of two. When 0, DefaultAlignment is used.
	Alignment uint
}

// Allocator partitions a caller-supplied byte region into a chain of variable-size
// blocks, each either free or occupied. Allocation performs a first-fit scan of the
// chain, splitting the found block when the remainder can host another header.
// Deallocation coalesces the freed block with free neighbors.
type Allocator struct {
	mem    []byte
	logger *slog.Logger

	alignment       uint
	headerFootprint int
	occupied        int

	guards allocGuards
}

var _ memutils.Validatable = &Allocator{}

// New creates an Allocator managing the provided region. The region is zeroed and laid
// out as a single free block. It must be at least one header footprint large and no
// larger than MaxRegionSize.
//
// logger may be nil, in which case nothing is logged.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, region []byte, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	alignment := options.Alignment
	if alignment == 0 {
		alignment = DefaultAlignment
	}
	err := memutils.CheckPow2(alignment, "options.Alignment")
	if err != nil {
		return nil, err
	}

	if len(region) > MaxRegionSize {
		return nil, errors.Errorf("the region is %d bytes, but block sizes are stored in 31 bits- regions cannot be larger than %d bytes", len(region), MaxRegionSize)
	}

	headerFootprint := memutils.AlignUp(rawHeaderSize, alignment)
	if len(region) < headerFootprint {
		return nil, errors.Errorf("the region is %d bytes, which cannot hold even a single %d-byte block header", len(region), headerFootprint)
	}

	a := &Allocator{
		mem:             region,
		logger:          logger,
		alignment:       alignment,
		headerFootprint: headerFootprint,
	}
	a.initRegion()

	logger.Debug("fixedheap.New",
		slog.Int("TotalBytes", len(region)),
		slog.Int("Alignment", int(alignment)),
		slog.Int("HeaderFootprint", headerFootprint))

	return a, nil
}

// initRegion lays the region out as one free block spanning everything after its header.
// The header itself is charged to the occupied counter for the allocator's whole lifetime.
func (a *Allocator) initRegion() {
	for i := range a.mem {
		a.mem[i] = 0
	}

	a.writeHeader(0, len(a.mem)-a.headerFootprint, 0, false)
	a.occupied = a.headerFootprint
	a.debugResetGuards()
}

// writeHeader writes a complete block header at offset, replacing whatever bytes are there.
func (a *Allocator) writeHeader(offset, size, prevDistance int, occupied bool) {
	word := uint32(size) & sizeMask
	if occupied {
		word |= occupiedFlag
	}
	putUint32(a.mem, offset, word)
	putUint32(a.mem, offset+4, uint32(prevDistance))
}

// Alloc allocates numBytes contiguous bytes from the region and returns the payload as a
// sub-slice of it. The request is rounded up to the alignment requirement, and the block
// handed out may be larger still when the free block found could not be split. Alloc
// returns nil when numBytes is not positive or when no free block can satisfy the request;
// in either case no state is mutated.
func (a *Allocator) Alloc(numBytes int) []byte {
	if numBytes <= 0 {
		return nil
	}
	if numBytes > len(a.mem) {
		return nil
	}
	memutils.DebugValidate(a)

	userLen := memutils.AlignUp(numBytes, a.alignment)
	size := userLen
	if memutils.DebugMargin > 0 {
		size = memutils.AlignUp(size+memutils.DebugMargin, a.alignment)
	}

	// First fit: walk the chain for a free block large enough
	block := 0
	for !a.isFree(block) || a.blockSize(block) < size {
		next, ok := a.nextBlock(block)
		if !ok {
			return nil
		}
		block = next
	}

	a.setOccupied(block)

	if a.blockSize(block) >= size+int(a.alignment)+a.headerFootprint {
		// Large enough to carve off a free remainder with its own header
		remainder := a.blockSize(block) - size - a.headerFootprint
		a.setBlockSize(block, size)

		split := block + a.headerFootprint + size
		a.writeHeader(split, remainder, a.headerFootprint+size, false)
		if next, ok := a.nextBlock(split); ok {
			a.setPrevDistance(next, next-split)
		}

		a.occupied += a.headerFootprint
	}

	a.occupied += a.blockSize(block)

	payload := block + a.headerFootprint
	a.debugNoteAlloc(block, userLen)
	return a.mem[payload : payload+userLen : payload+userLen]
}

// Free returns the payload mem, previously obtained from Alloc on this same region, to
// the allocator, coalescing the freed block with free neighbors. Pointers whose derived
// header position falls outside the region are silently ignored. Passing any in-range
// slice that was not returned by Alloc, or freeing the same payload twice, is out of
// contract and corrupts the chain; builds with the debug_fixedheap tag panic on such
// misuse instead.
func (a *Allocator) Free(mem []byte) {
	if len(mem) == 0 {
		return
	}

	block, ok := a.blockForPayload(mem)
	if !ok {
		return
	}
	memutils.DebugValidate(a)
	a.debugNoteFree(block)

	a.setFree(block)
	a.occupied -= a.blockSize(block)

	// Absorb the freed block into a free predecessor, then absorb a free successor.
	// Each merge destroys one header, which is discounted from the occupied counter.
	if prev, ok := a.prevBlock(block); ok && a.isFree(prev) {
		a.setBlockSize(prev, a.blockSize(prev)+a.headerFootprint+a.blockSize(block))
		block = prev
		a.occupied -= a.headerFootprint
	}

	if next, ok := a.nextBlock(block); ok && a.isFree(next) {
		a.setBlockSize(block, a.blockSize(block)+a.headerFootprint+a.blockSize(next))
		a.occupied -= a.headerFootprint
	}

	if next, ok := a.nextBlock(block); ok {
		a.setPrevDistance(next, next-block)
	}
}

// OccupiedBytes returns the number of bytes currently charged as spent: live payloads
// plus every block header currently present in the chain. Immediately after construction
// or Clear this is exactly one header footprint.
func (a *Allocator) OccupiedBytes() int {
	return a.occupied
}

// TotalBytes returns the fixed total size of the managed region.
func (a *Allocator) TotalBytes() int {
	return len(a.mem)
}

// SumFreeSize returns the number of free payload bytes in the region.
func (a *Allocator) SumFreeSize() int {
	return len(a.mem) - a.occupied
}

// Alignment returns the alignment requirement in bytes.
func (a *Allocator) Alignment() uint {
	return a.alignment
}

// HeaderFootprint returns the alignment-rounded byte cost of one block header.
func (a *Allocator) HeaderFootprint() int {
	return a.headerFootprint
}

// Region returns the backing byte region. It remains valid bookkeeping at all times, so
// it can be dumped or persisted raw; writing to it by other means corrupts the allocator.
func (a *Allocator) Region() []byte {
	return a.mem
}

// AllocationCount returns the number of occupied blocks in the chain. It walks the chain.
func (a *Allocator) AllocationCount() int {
	var count int
	for block, ok := 0, true; ok; block, ok = a.nextBlock(block) {
		if !a.isFree(block) {
			count++
		}
	}
	return count
}

// FreeRegionsCount returns the number of free blocks in the chain. Adjacent free blocks
// never persist after a completed Free, so this is also the number of distinct free
// ranges. It walks the chain.
func (a *Allocator) FreeRegionsCount() int {
	var count int
	for block, ok := 0, true; ok; block, ok = a.nextBlock(block) {
		if a.isFree(block) {
			count++
		}
	}
	return count
}

// IsEmpty will return true if this allocator has no live allocations
func (a *Allocator) IsEmpty() bool {
	return a.AllocationCount() == 0
}

// Clear instantly frees all allocations and returns the region to its freshly-constructed
// state. Payloads previously returned by Alloc become invalid.
func (a *Allocator) Clear() {
	a.initRegion()
	a.logger.Debug("fixedheap.Clear", slog.Int("TotalBytes", len(a.mem)))
}
