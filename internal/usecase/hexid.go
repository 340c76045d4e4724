package usecase

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	hexIDStartWidth  = 3  // 3 hex digits = 4096 values
	hexIDMaxAttempts = 16 // collisions tolerated before widening
)

// HexIDAllocator hands out short, session-scoped hexadecimal identifiers used
// to address messages from the command line. IDs are sampled randomly at a
// fixed width; after too many collisions the width grows by one digit and
// sampling resumes. IDs are never persisted; every run recomputes them over
// the loaded document. Used only from the single control-flow goroutine; a
// parallel caller would need external locking.
type HexIDAllocator struct {
	rng   *rand.Rand
	width int
	used  map[string]bool
}

// NewHexIDAllocator creates an allocator starting at the default width.
func NewHexIDAllocator() *HexIDAllocator {
	return &HexIDAllocator{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		width: hexIDStartWidth,
		used:  make(map[string]bool),
	}
}

// Alloc returns a fresh identifier not currently in use.
func (a *HexIDAllocator) Alloc() string {
	for {
		space := 1
		for i := 0; i < a.width; i++ {
			space *= 16
		}
		for attempt := 0; attempt < hexIDMaxAttempts; attempt++ {
			id := fmt.Sprintf("%0*x", a.width, a.rng.Intn(space))
			if !a.used[id] {
				a.used[id] = true
				return id
			}
		}
		a.width++
	}
}

// Free releases an identifier when its message is purged or rewound past.
func (a *HexIDAllocator) Free(id string) {
	delete(a.used, id)
}

// Reset discards all identifiers and returns to the starting width.
func (a *HexIDAllocator) Reset() {
	a.width = hexIDStartWidth
	a.used = make(map[string]bool)
}
