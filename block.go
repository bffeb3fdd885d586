package fixedheap

import (
	"encoding/binary"
	"unsafe"
)

const (
	// rawHeaderSize is the unaligned byte cost of one block header: a uint32 size/occupancy
	// word followed by a uint32 previous-block offset. The real per-block cost is this value
	// rounded up to the allocator's alignment (Allocator.HeaderFootprint).
	rawHeaderSize = 8

	occupiedFlag uint32 = 0x80000000
	sizeMask     uint32 = 0x7fffffff

	// MaxRegionSize is the largest region New will accept. Block payload sizes are stored
	// in the low 31 bits of the header's size word, so the region as a whole must fit there too.
	MaxRegionSize = int(sizeMask)
)

// Block headers live inside the region itself, little-endian:
//
//	bytes [0,4): occupancy (top bit, 1 = occupied) packed with the payload size (low 31 bits)
//	bytes [4,8): byte distance back to the previous block's header, 0 = first block
//
// The payload begins HeaderFootprint bytes after the header start. There is no stored "next"
// link: the next header, if any, begins at offset + HeaderFootprint + payload size.

func putUint32(region []byte, offset int, value uint32) {
	binary.LittleEndian.PutUint32(region[offset:], value)
}

func (a *Allocator) sizeWord(offset int) uint32 {
	return binary.LittleEndian.Uint32(a.mem[offset:])
}

func (a *Allocator) blockSize(offset int) int {
	return int(a.sizeWord(offset) & sizeMask)
}

func (a *Allocator) setBlockSize(offset, size int) {
	word := a.sizeWord(offset)&occupiedFlag | uint32(size)&sizeMask
	binary.LittleEndian.PutUint32(a.mem[offset:], word)
}

func (a *Allocator) isFree(offset int) bool {
	return a.sizeWord(offset)&occupiedFlag == 0
}

func (a *Allocator) setFree(offset int) {
	binary.LittleEndian.PutUint32(a.mem[offset:], a.sizeWord(offset)&sizeMask)
}

func (a *Allocator) setOccupied(offset int) {
	binary.LittleEndian.PutUint32(a.mem[offset:], a.sizeWord(offset)|occupiedFlag)
}

func (a *Allocator) prevDistance(offset int) int {
	return int(binary.LittleEndian.Uint32(a.mem[offset+4:]))
}

func (a *Allocator) setPrevDistance(offset, distance int) {
	binary.LittleEndian.PutUint32(a.mem[offset+4:], uint32(distance))
}

// nextBlock returns the offset of the block following the one at offset. A next block
// exists only if the derived header address lies strictly inside the region.
func (a *Allocator) nextBlock(offset int) (int, bool) {
	next := offset + a.headerFootprint + a.blockSize(offset)
	if next >= len(a.mem) {
		return 0, false
	}
	return next, true
}

// prevBlock returns the offset of the block preceding the one at offset, via the stored
// back-distance. The first block stores a distance of 0 and has no predecessor.
func (a *Allocator) prevBlock(offset int) (int, bool) {
	distance := a.prevDistance(offset)
	if distance == 0 || distance > offset {
		return 0, false
	}
	return offset - distance, true
}

// blockForPayload maps a payload slice back to its block's header offset by stepping the
// payload's base address back one header footprint. Addresses that land outside the
// region span produce ok=false.
func (a *Allocator) blockForPayload(payload []byte) (int, bool) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(payload)))
	if ptr < base {
		return 0, false
	}

	block := int(ptr-base) - a.headerFootprint
	if block < 0 || block >= len(a.mem) {
		return 0, false
	}
	return block, true
}
