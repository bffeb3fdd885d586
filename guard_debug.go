//go:build debug_fixedheap

package fixedheap

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/fixedheap/memutils"
)

// allocGuards tracks every live payload handed out by Alloc so that debug builds can
// catch out-of-contract frees before they corrupt the chain. Shared by all copies of the
// allocator handle, like the rest of its state.
type allocGuards struct {
	live *swiss.Map[int, int]
}

func (a *Allocator) debugNoteAlloc(blockOffset, userLen int) {
	if a.guards.live == nil {
		a.guards.live = swiss.NewMap[int, int](42)
	}

	payload := blockOffset + a.headerFootprint
	if _, ok := a.guards.live.Get(payload); ok {
		panic(fmt.Sprintf("fixedheap: allocated a payload at offset %d, but that payload is already live", payload))
	}
	a.guards.live.Put(payload, userLen)

	memutils.WriteMagicValue(a.mem, payload+a.blockSize(blockOffset)-memutils.DebugMargin)
}

func (a *Allocator) debugNoteFree(blockOffset int) {
	payload := blockOffset + a.headerFootprint

	var live bool
	if a.guards.live != nil {
		_, live = a.guards.live.Get(payload)
	}
	if !live {
		panic(fmt.Sprintf("fixedheap: freed the payload at offset %d, but it was not live - this is a double free or a pointer that did not come from Alloc", payload))
	}

	if !memutils.ValidateMagicValue(a.mem, payload+a.blockSize(blockOffset)-memutils.DebugMargin) {
		panic(fmt.Sprintf("MEMORY CORRUPTION DETECTED AFTER THE ALLOCATION AT OFFSET %d!", blockOffset))
	}

	a.guards.live.Delete(payload)
}

func (a *Allocator) debugResetGuards() {
	a.guards.live = nil
}
