package fixedheap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/fixedheap/memutils"
	"golang.org/x/exp/slog"
)

// Validate performs internal consistency checks on the block chain and the occupied-byte
// counter. When the allocator is functioning correctly and its misuse preconditions have
// been honored, it should not be possible for this method to return an error, but it may
// assist in diagnosing chain corruption caused by out-of-contract frees or stray writes
// to the region.
func (a *Allocator) Validate() error {
	if a.occupied > len(a.mem) || a.occupied < a.headerFootprint {
		return errors.Errorf("the occupied byte counter is %d, which is outside the valid range [%d, %d]", a.occupied, a.headerFootprint, len(a.mem))
	}

	var calculatedOccupied int
	prev := -1
	offset := 0

	for {
		if offset+a.headerFootprint > len(a.mem) {
			return errors.Errorf("the block header at offset %d extends past the end of the %d-byte region", offset, len(a.mem))
		}

		size := a.blockSize(offset)
		if offset+a.headerFootprint+size > len(a.mem) {
			return errors.Errorf("the block at offset %d has a %d-byte payload, which extends past the end of the %d-byte region", offset, size, len(a.mem))
		}

		if !a.isFree(offset) && !memutils.IsAligned(size, a.alignment) {
			return errors.Errorf("the occupied block at offset %d has a %d-byte payload, which is not a multiple of the %d-byte alignment requirement", offset, size, a.alignment)
		}

		if prev < 0 {
			if a.prevDistance(offset) != 0 {
				return errors.Errorf("the first block must have a previous-block distance of 0, but it is %d", a.prevDistance(offset))
			}
		} else {
			if a.prevDistance(offset) != offset-prev {
				return errors.Errorf("the block at offset %d records a previous-block distance of %d, but its predecessor is at offset %d", offset, a.prevDistance(offset), prev)
			}

			if a.isFree(offset) && a.isFree(prev) {
				return errors.Errorf("the adjacent free blocks at offsets %d and %d were not coalesced", prev, offset)
			}
		}

		calculatedOccupied += a.headerFootprint
		if !a.isFree(offset) {
			calculatedOccupied += size
		}

		next, ok := a.nextBlock(offset)
		if !ok {
			break
		}
		prev = offset
		offset = next
	}

	if calculatedOccupied != a.occupied {
		return errors.Errorf("the occupied byte counter is %d, but the block chain adds up to %d", a.occupied, calculatedOccupied)
	}

	return nil
}

// VisitAllRegions calls the provided callback once for every block in the chain, in
// region order. offset is the block header's position within the region (the payload
// begins one header footprint later) and size is the payload size. A non-nil error from
// the callback stops the walk and is returned.
func (a *Allocator) VisitAllRegions(handleBlock func(offset, size int, free bool) error) error {
	for block, ok := 0, true; ok; block, ok = a.nextBlock(block) {
		err := handleBlock(block, a.blockSize(block), a.isFree(block))
		if err != nil {
			return err
		}
	}

	return nil
}

// AddStatistics sums this allocator's usage into the counters currently present in the
// provided memutils.Statistics object.
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	stats.RegionCount++
	stats.RegionBytes += len(a.mem)
	stats.BlockCount += a.AllocationCount()
	stats.BlockBytes += a.occupied
}

// AddDetailedStatistics sums this allocator's usage into the counters currently present
// in the provided memutils.DetailedStatistics object. Block size extremes cover payloads
// only; header overhead is charged to BlockBytes afterward so that the embedded
// Statistics matches AddStatistics.
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionCount++
	stats.RegionBytes += len(a.mem)

	var chainBlocks int
	_ = a.VisitAllRegions(func(offset, size int, free bool) error {
		chainBlocks++
		if free {
			stats.AddFreeRange(size)
		} else {
			stats.AddBlock(size)
		}

		return nil
	})

	stats.BlockBytes += chainBlocks * a.headerFootprint
}

// BlockJsonData populates a json object with summary information about this allocator
func (a *Allocator) BlockJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(len(a.mem))
	json.Name("OccupiedBytes").Int(a.occupied)
	json.Name("HeaderFootprint").Int(a.headerFootprint)
	json.Name("Allocations").Int(a.AllocationCount())
	json.Name("FreeRanges").Int(a.FreeRegionsCount())
}

// PrintDetailedMap writes a json document describing the allocator and every block in
// its chain to the provided writer. This walks the chain twice and should generally only
// be used for diagnostic purposes.
func (a *Allocator) PrintDetailedMap(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	a.BlockJsonData(obj)

	arr := obj.Name("Blocks").Array()
	defer arr.End()

	_ = a.VisitAllRegions(func(offset, size int, free bool) error {
		blockObj := arr.Object()
		defer blockObj.End()

		blockObj.Name("Offset").Int(offset)
		blockObj.Name("Size").Int(size)
		blockObj.Name("Free").Bool(free)

		return nil
	})
}

// DebugLogAllAllocations calls logFunc for every occupied block in the chain. It is
// intended for reporting leaked allocations when the consumer expects the region to be
// empty.
func (a *Allocator) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, offset int, size int)) {
	for block, ok := 0, true; ok; block, ok = a.nextBlock(block) {
		if !a.isFree(block) {
			logFunc(logger, block, a.blockSize(block))
		}
	}
}

// CheckCorruption returns nil if anti-corruption memory markers are present after every
// occupied payload in the region.
//
// Bear in mind that anti-corruption memory markers are only written when fixedheap is
// built with the build flag `debug_fixedheap`. This method will not return an error when
// that flag is not present, but it walks the chain regardless of build flags and so
// should only be run when memutils.DebugMargin is not 0.
func (a *Allocator) CheckCorruption() error {
	for block, ok := 0, true; ok; block, ok = a.nextBlock(block) {
		if a.isFree(block) {
			continue
		}

		markerAt := block + a.headerFootprint + a.blockSize(block) - memutils.DebugMargin
		if !memutils.ValidateMagicValue(a.mem, markerAt) {
			return errors.Errorf("MEMORY CORRUPTION DETECTED AFTER THE ALLOCATION AT OFFSET %d!", block)
		}
	}

	return nil
}
