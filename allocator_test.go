package fixedheap_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fixedheap"
	"github.com/vkngwrapper/fixedheap/memutils"
)

func TestNewBaseline(t *testing.T) {
	region := make([]byte, 1024)
	alloc, err := fixedheap.New(nil, region, fixedheap.CreateOptions{})
	require.NoError(t, err)

	require.Equal(t, 8, alloc.HeaderFootprint())
	require.Equal(t, 8, alloc.OccupiedBytes())
	require.Equal(t, 1024, alloc.TotalBytes())
	require.Equal(t, 1016, alloc.SumFreeSize())
	require.True(t, alloc.IsEmpty())
	require.Equal(t, 0, alloc.AllocationCount())
	require.Equal(t, 1, alloc.FreeRegionsCount())
	require.NoError(t, alloc.Validate())

	var stats memutils.DetailedStatistics
	stats.Clear()
	alloc.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionCount: 1,
			BlockCount:  0,
			RegionBytes: 1024,
			BlockBytes:  8,
		},
		FreeRangeCount:   1,
		BlockSizeMin:     math.MaxInt,
		BlockSizeMax:     0,
		FreeRangeSizeMin: 1016,
		FreeRangeSizeMax: 1016,
	}, stats)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := fixedheap.New(nil, make([]byte, 4), fixedheap.CreateOptions{})
	require.Error(t, err)

	_, err = fixedheap.New(nil, make([]byte, 8), fixedheap.CreateOptions{Alignment: 16})
	require.Error(t, err)

	_, err = fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 48})
	require.Error(t, err)
	require.ErrorIs(t, err, memutils.PowerOfTwoError)
}

func TestAllocZeroBytes(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{})
	require.NoError(t, err)

	require.Nil(t, alloc.Alloc(0))
	require.Nil(t, alloc.Alloc(-16))

	require.Equal(t, 8, alloc.OccupiedBytes())
	require.Equal(t, 1024, alloc.TotalBytes())
	require.NoError(t, alloc.Validate())
}

func TestAllocFreeRoundTrip(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	p1 := alloc.Alloc(64)
	require.NotNil(t, p1)
	require.Len(t, p1, 64)

	// The occupied block, its header, and the split remainder's new header
	require.Equal(t, 64+8+8, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())

	require.Nil(t, alloc.Alloc(9000))
	require.Equal(t, 80, alloc.OccupiedBytes())

	alloc.Free(p1)
	require.Equal(t, 8, alloc.OccupiedBytes())
	require.Equal(t, 1024, alloc.TotalBytes())
	require.True(t, alloc.IsEmpty())
	require.NoError(t, alloc.Validate())
}

func TestAllocRoundsRequestsUp(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 16})
	require.NoError(t, err)
	require.Equal(t, 16, alloc.HeaderFootprint())

	p := alloc.Alloc(1)
	require.NotNil(t, p)
	require.Len(t, p, 16)
	require.Equal(t, 16+16+16, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())

	alloc.Free(p)
	require.Equal(t, 16, alloc.OccupiedBytes())
}

func TestAllocWithByteAlignment(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 1})
	require.NoError(t, err)
	require.Equal(t, 8, alloc.HeaderFootprint())

	p := alloc.Alloc(3)
	require.NotNil(t, p)
	require.Len(t, p, 3)
	require.Equal(t, 8+8+3, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())
}

func TestFirstFitReusesEarliestHole(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	first := alloc.Alloc(100)
	require.NotNil(t, first)
	second := alloc.Alloc(50)
	require.NotNil(t, second)

	alloc.Free(first)
	require.NoError(t, alloc.Validate())

	third := alloc.Alloc(64)
	require.NotNil(t, third)
	require.NoError(t, alloc.Validate())

	// The new block landed in the old hole, which was split into the
	// allocation and a small free remainder
	require.Equal(t, []blockInfo{
		{Offset: 0, Size: 64, Free: false},
		{Offset: 72, Size: 32, Free: true},
		{Offset: 112, Size: 56, Free: false},
		{Offset: 176, Size: 840, Free: true},
	}, collectBlocks(t, alloc))

	third[0] = 0xAB
	require.Equal(t, byte(0xAB), alloc.Region()[8])
}

func TestCoalescingIsOrderIndependent(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	blockA := alloc.Alloc(64)
	blockB := alloc.Alloc(64)
	blockC := alloc.Alloc(64)
	require.NotNil(t, blockA)
	require.NotNil(t, blockB)
	require.NotNil(t, blockC)
	require.Equal(t, 224, alloc.OccupiedBytes())

	alloc.Free(blockA)
	require.Equal(t, 160, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())

	alloc.Free(blockC)
	require.Equal(t, 88, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())

	alloc.Free(blockB)
	require.Equal(t, 8, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())

	// The chain collapsed back to a single free block, so the whole region
	// can be handed out again
	require.Equal(t, 1, alloc.FreeRegionsCount())
	full := alloc.Alloc(1016)
	require.NotNil(t, full)
	require.Equal(t, 1024, alloc.OccupiedBytes())
}

func TestRoundTripOverManyFreeOrders(t *testing.T) {
	sizes := []int{24, 16, 100, 8, 250, 32, 64, 8, 40, 120}
	freeOrders := [][]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
		{0, 2, 4, 6, 8, 1, 3, 5, 7, 9},
		{5, 0, 9, 2, 7, 4, 1, 8, 3, 6},
	}

	for _, order := range freeOrders {
		alloc, err := fixedheap.New(nil, make([]byte, 2048), fixedheap.CreateOptions{Alignment: 8})
		require.NoError(t, err)

		payloads := make([][]byte, len(sizes))
		for i, size := range sizes {
			payloads[i] = alloc.Alloc(size)
			require.NotNil(t, payloads[i])
		}
		require.NoError(t, alloc.Validate())

		for _, i := range order {
			alloc.Free(payloads[i])
			require.NoError(t, alloc.Validate())
		}

		require.Equal(t, 8, alloc.OccupiedBytes())
		require.True(t, alloc.IsEmpty())
		require.Equal(t, 1, alloc.FreeRegionsCount())
	}
}

func TestNoSplitWithoutRoomForAnotherHeader(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 32), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	// 24 payload bytes are available; a 16-byte request leaves too little for
	// another header plus an alignment unit, so the whole block is handed out
	p := alloc.Alloc(16)
	require.NotNil(t, p)
	require.Len(t, p, 16)
	require.Equal(t, 32, alloc.OccupiedBytes())
	require.Equal(t, 0, alloc.FreeRegionsCount())
	require.NoError(t, alloc.Validate())

	require.Nil(t, alloc.Alloc(8))

	alloc.Free(p)
	require.Equal(t, 8, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())
}

func TestExhaustion(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	require.Nil(t, alloc.Alloc(2048))
	require.Nil(t, alloc.Alloc(1017))
	require.Equal(t, 8, alloc.OccupiedBytes())

	full := alloc.Alloc(1016)
	require.NotNil(t, full)
	require.Equal(t, 1024, alloc.OccupiedBytes())
	require.Equal(t, 0, alloc.SumFreeSize())

	require.Nil(t, alloc.Alloc(8))
	require.NoError(t, alloc.Validate())
}

func TestFreeIgnoresOutOfRangePointers(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	p := alloc.Alloc(64)
	require.NotNil(t, p)
	occupied := alloc.OccupiedBytes()

	alloc.Free(nil)
	alloc.Free(make([]byte, 16))
	// Stepping back one header footprint from the region's start lands before
	// the region
	alloc.Free(alloc.Region()[:4])

	require.Equal(t, occupied, alloc.OccupiedBytes())
	require.NoError(t, alloc.Validate())
}

func TestHandleCopiesShareState(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	other := alloc
	p := other.Alloc(64)
	require.NotNil(t, p)
	require.Equal(t, 80, alloc.OccupiedBytes())

	alloc.Free(p)
	require.Equal(t, 8, other.OccupiedBytes())
}

func TestClear(t *testing.T) {
	alloc, err := fixedheap.New(nil, make([]byte, 1024), fixedheap.CreateOptions{Alignment: 8})
	require.NoError(t, err)

	require.NotNil(t, alloc.Alloc(64))
	require.NotNil(t, alloc.Alloc(128))
	require.False(t, alloc.IsEmpty())

	alloc.Clear()

	require.Equal(t, 8, alloc.OccupiedBytes())
	require.True(t, alloc.IsEmpty())
	require.Equal(t, 1, alloc.FreeRegionsCount())
	require.NoError(t, alloc.Validate())

	p := alloc.Alloc(1016)
	require.NotNil(t, p)
	require.Len(t, p, 1016)
}

type blockInfo struct {
	Offset int
	Size   int
	Free   bool
}

func collectBlocks(t *testing.T, alloc *fixedheap.Allocator) []blockInfo {
	t.Helper()

	var blocks []blockInfo
	err := alloc.VisitAllRegions(func(offset, size int, free bool) error {
		blocks = append(blocks, blockInfo{Offset: offset, Size: size, Free: free})
		return nil
	})
	require.NoError(t, err)
	return blocks
}
