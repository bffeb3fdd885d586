package memutils

import "math"

// Statistics is a set of basic usage counters for one or more memory regions.
// RegionCount and RegionBytes describe whole managed regions, while BlockCount
// and BlockBytes describe the live blocks carved out of them. BlockBytes
// includes per-block header overhead, so a region with no live blocks still
// reports nonzero BlockBytes.
type Statistics struct {
	RegionCount int
	BlockCount  int
	RegionBytes int
	BlockBytes  int
}

func (s *Statistics) Clear() {
	s.RegionCount = 0
	s.BlockCount = 0
	s.RegionBytes = 0
	s.BlockBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.RegionCount += other.RegionCount
	s.BlockCount += other.BlockCount
	s.RegionBytes += other.RegionBytes
	s.BlockBytes += other.BlockBytes
}

// DetailedStatistics extends Statistics with per-block and per-free-range
// extremes. Collecting it requires walking the block chain, so it is more
// expensive to produce than Statistics.
type DetailedStatistics struct {
	Statistics
	FreeRangeCount   int
	BlockSizeMin     int
	BlockSizeMax     int
	FreeRangeSizeMin int
	FreeRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.FreeRangeCount = 0
	s.BlockSizeMin = math.MaxInt
	s.BlockSizeMax = 0
	s.FreeRangeSizeMin = math.MaxInt
	s.FreeRangeSizeMax = 0
}

func (s *DetailedStatistics) AddFreeRange(size int) {
	s.FreeRangeCount++

	if size < s.FreeRangeSizeMin {
		s.FreeRangeSizeMin = size
	}

	if size > s.FreeRangeSizeMax {
		s.FreeRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddBlock(size int) {
	s.BlockCount++
	s.BlockBytes += size

	if size < s.BlockSizeMin {
		s.BlockSizeMin = size
	}

	if size > s.BlockSizeMax {
		s.BlockSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.FreeRangeCount += other.FreeRangeCount

	if other.FreeRangeSizeMin < s.FreeRangeSizeMin {
		s.FreeRangeSizeMin = other.FreeRangeSizeMin
	}

	if other.FreeRangeSizeMax > s.FreeRangeSizeMax {
		s.FreeRangeSizeMax = other.FreeRangeSizeMax
	}

	if other.BlockSizeMin < s.BlockSizeMin {
		s.BlockSizeMin = other.BlockSizeMin
	}

	if other.BlockSizeMax > s.BlockSizeMax {
		s.BlockSizeMax = other.BlockSizeMax
	}
}
