package sequence

import (
	"context"
	"sync"

	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
)

type memoryCounter struct {
	mu     sync.Mutex
	seeded bool
	value  int64
}

// MemoryAllocator serialises allocations per key inside one process.
type MemoryAllocator struct {
	mu       sync.Mutex
	counters map[Key]*memoryCounter
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{counters: make(map[Key]*memoryCounter)}
}

func (a *MemoryAllocator) Backend() string { return BackendMemory }

func (a *MemoryAllocator) Next(ctx context.Context, key Key, seed SeedFunc) (int64, error) {
	if !key.valid() {
		return 0, invoicedomain.ErrUnsupportedSequenceKey
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if seed == nil {
		seed = noSeed
	}

	a.mu.Lock()
	counter, ok := a.counters[key]
	if !ok {
		counter = &memoryCounter{}
		a.counters[key] = counter
	}
	a.mu.Unlock()

	counter.mu.Lock()
	defer counter.mu.Unlock()

	if !counter.seeded {
		base, err := seed(ctx, key)
		if err != nil {
			return 0, err
		}
		counter.value = base
		counter.seeded = true
	}
	counter.value++
	return counter.value, nil
}
