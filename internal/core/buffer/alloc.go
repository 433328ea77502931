package buffer

import (
	"fmt"

	"github.com/mongiaK/openvswitch/internal/core"
)

// DefaultMaxSize bounds a single storage allocation: a 64KiB GSO super-packet
// plus room for a few stacked encapsulations.
const DefaultMaxSize = 65536 + 4096

// Allocator hands out backing storage for buffers. Implementations report
// exhaustion with an error wrapping core.ErrOutOfMemory instead of panicking.
type Allocator interface {
	Alloc(size int) ([]byte, error)
}

// HeapAllocator allocates from the Go heap and refuses requests above MaxSize.
// A zero MaxSize means unbounded.
type HeapAllocator struct {
	MaxSize int
}

// Alloc implements Allocator.
func (a HeapAllocator) Alloc(size int) ([]byte, error) {
	if size < 0 || (a.MaxSize > 0 && size > a.MaxSize) {
		return nil, fmt.Errorf("allocate %d bytes (limit %d): %w", size, a.MaxSize, core.ErrOutOfMemory)
	}
	return make([]byte, size), nil
}

// DefaultAllocator is used by buffers created without WithAllocator.
var DefaultAllocator Allocator = HeapAllocator{MaxSize: DefaultMaxSize}
