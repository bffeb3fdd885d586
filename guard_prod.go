//go:build !debug_fixedheap

package fixedheap

// allocGuards carries no state in release builds. Misuse of Free (double frees, in-range
// slices that never came from Alloc) is out of contract and goes undetected, preserving
// predictable performance.
type allocGuards struct{}

func (a *Allocator) debugNoteAlloc(blockOffset, userLen int) {
}

func (a *Allocator) debugNoteFree(blockOffset int) {
}

func (a *Allocator) debugResetGuards() {
}
