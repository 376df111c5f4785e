// Package arena implements the fixed-slot thread-safe allocator used to
// hand reusable event buffers between the acquire and writer threads
// without per-event heap allocation, grounded on ice-arena.c.
package arena

import (
	"fmt"
	"math/bits"
	"sync"
	"unsafe"
)

// Arena is a fixed-count pool of membsize-byte slots. A bitmap (1=free)
// tracks availability; a counting semaphore (implemented as a buffered
// channel, the idiomatic Go substitute for POSIX sem_t) bounds concurrent
// Get calls to the slot count.
type Arena struct {
	name     string
	nmemb    int
	membsize int

	mem []byte

	mu      sync.Mutex
	freeMap []uint64 // 1 bit per slot, 1 = free

	sem chan struct{}

	nAllocated int
	nFreed     int
}

// New creates an arena with room for at least nmemb slots of membsize
// bytes each. nmemb is rounded up to a multiple of 64 so the free bitmap
// divides evenly into uint64 words.
func New(nmemb, membsize int, name string) *Arena {
	if nmemb < 1 {
		nmemb = 1
	}
	nmemb = (nmemb + 63) &^ 63

	words := nmemb / 64
	freeMap := make([]uint64, words)
	for i := range freeMap {
		freeMap[i] = ^uint64(0)
	}

	sem := make(chan struct{}, nmemb)
	for i := 0; i < nmemb; i++ {
		sem <- struct{}{}
	}

	return &Arena{
		name:     name,
		nmemb:    nmemb,
		membsize: membsize,
		mem:      make([]byte, nmemb*membsize),
		freeMap:  freeMap,
		sem:      sem,
	}
}

// Capacity returns the total slot count (post rounding).
func (a *Arena) Capacity() int { return a.nmemb }

// Occupancy returns the number of slots currently checked out.
func (a *Arena) Occupancy() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nAllocated - a.nFreed
}

// Get blocks until a slot is available, then returns a pointer to it.
// The bitmap scan finds the lowest free bit in O(nmemb/64) using
// bits.TrailingZeros64, the Go analogue of __builtin_ctzll.
func (a *Arena) Get() unsafe.Pointer {
	<-a.sem

	a.mu.Lock()
	defer a.mu.Unlock()

	idx := -1
	for i, word := range a.freeMap {
		if word != 0 {
			bit := bits.TrailingZeros64(word)
			idx = bit + i*64
			a.freeMap[i] &^= uint64(1) << uint(bit)
			break
		}
	}
	if idx < 0 {
		// Semaphore accounting guarantees this cannot happen.
		panic(fmt.Sprintf("arena %s: semaphore admitted a slot but bitmap is full", a.name))
	}

	a.nAllocated++
	return unsafe.Pointer(&a.mem[idx*a.membsize])
}

// GetSlice is a convenience wrapper returning the slot as a []byte of
// length membsize, for callers that don't need raw pointer arithmetic.
func (a *Arena) GetSlice() []byte {
	p := a.Get()
	return unsafe.Slice((*byte)(p), a.membsize)
}

// slotIndex validates that p lies on a slot boundary within this arena's
// backing storage, returning its index or -1 if not.
func (a *Arena) slotIndex(p unsafe.Pointer) int {
	base := uintptr(unsafe.Pointer(&a.mem[0]))
	addr := uintptr(p)
	if addr < base {
		return -1
	}
	off := addr - base
	if int(off) >= len(a.mem) {
		return -1
	}
	if int(off)%a.membsize != 0 {
		return -1
	}
	idx := int(off) / a.membsize
	if idx >= a.nmemb {
		return -1
	}
	return idx
}

// Free releases a slot previously returned by Get. A pointer that does
// not land on a slot boundary is rejected and left untouched. A
// double-free is diagnosed (via onDoubleFree, if non-nil) but has no
// side effect on the bitmap or semaphore.
func (a *Arena) Free(p unsafe.Pointer, onInvalid, onDoubleFree func()) {
	idx := a.slotIndex(p)
	if idx < 0 {
		if onInvalid != nil {
			onInvalid()
		}
		return
	}

	a.mu.Lock()
	word, bit := idx>>6, uint(idx&0x3f)
	alreadyFree := a.freeMap[word]&(uint64(1)<<bit) != 0
	if alreadyFree {
		a.mu.Unlock()
		if onDoubleFree != nil {
			onDoubleFree()
		}
		return
	}
	a.freeMap[word] |= uint64(1) << bit
	a.nFreed++
	a.mu.Unlock()

	a.sem <- struct{}{}
}

// FreeSlice releases a slot obtained via GetSlice.
func (a *Arena) FreeSlice(s []byte, onInvalid, onDoubleFree func()) {
	if len(s) == 0 {
		if onInvalid != nil {
			onInvalid()
		}
		return
	}
	a.Free(unsafe.Pointer(&s[0]), onInvalid, onDoubleFree)
}
