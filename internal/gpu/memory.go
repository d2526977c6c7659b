package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// Memory accounting errors.
var (
	// ErrMemoryBudgetExceeded is returned when an allocation would exceed the budget.
	ErrMemoryBudgetExceeded = errors.New("gpu: memory budget exceeded")

	// ErrUnknownAllocation is returned when freeing an allocation the
	// allocator never handed out.
	ErrUnknownAllocation = errors.New("gpu: allocation not tracked by allocator")
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default device memory budget (1 GB).
	DefaultMaxMemoryMB = 1024

	// MinMemoryMB is the minimum allowed memory budget (16 MB).
	MinMemoryMB = 16
)

// AllocationKind separates buffer from image allocations.
type AllocationKind uint8

// Allocation kinds.
const (
	AllocationBuffer AllocationKind = iota
	AllocationImage
)

func (k AllocationKind) String() string {
	switch k {
	case AllocationBuffer:
		return "buffer"
	case AllocationImage:
		return "image"
	default:
		return fmt.Sprintf("AllocationKind(%d)", uint8(k))
	}
}

// MemoryStats contains allocation statistics.
type MemoryStats struct {
	// TotalBytes is the budget in bytes.
	TotalBytes uint64

	// UsedBytes is the number of bytes currently allocated.
	UsedBytes uint64

	// PeakBytes is the highest UsedBytes observed.
	PeakBytes uint64

	// Buffers and Images count the live allocations of each kind.
	Buffers int
	Images  int

	// Utilization is UsedBytes / TotalBytes (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, peak %d MB, %d buffers, %d images]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.PeakBytes/(1024*1024),
		s.Buffers,
		s.Images)
}

// AllocatorConfig holds configuration for creating an Allocator.
type AllocatorConfig struct {
	// MaxMemoryMB is the budget in megabytes.
	// Defaults to DefaultMaxMemoryMB if below MinMemoryMB.
	MaxMemoryMB int
}

// Allocation is a handle to accounted memory.
type Allocation struct {
	id    uint64
	kind  AllocationKind
	label string
	size  uint64
}

// Size returns the accounted size in bytes.
func (a *Allocation) Size() uint64 { return a.size }

// Kind returns the allocation kind.
func (a *Allocation) Kind() AllocationKind { return a.kind }

// Label returns the debug label of the resource.
func (a *Allocation) Label() string { return a.label }

// Allocator accounts the device memory held by buffers and images and
// enforces a budget. The hal backends own the actual memory; the allocator
// only refuses allocations that would overflow the budget.
//
// Allocator is safe for concurrent use.
type Allocator struct {
	mu sync.Mutex

	budgetBytes uint64
	usedBytes   uint64
	peakBytes   uint64

	nextID uint64
	live   map[uint64]*Allocation
	counts [2]int
}

// NewAllocator creates an allocator with the configured budget.
func NewAllocator(config AllocatorConfig) *Allocator {
	maxMB := config.MaxMemoryMB
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}

	//nolint:gosec // G115: maxMB is bounded by MinMemoryMB minimum
	return &Allocator{
		budgetBytes: uint64(maxMB) * 1024 * 1024,
		live:        make(map[uint64]*Allocation),
	}
}

// Reserve accounts size bytes for a new resource.
func (a *Allocator) Reserve(kind AllocationKind, label string, size uint64) (*Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.usedBytes+size > a.budgetBytes {
		return nil, fmt.Errorf("%w: %s %q needs %d bytes, have %d bytes available",
			ErrMemoryBudgetExceeded, kind, label, size, a.budgetBytes-a.usedBytes)
	}

	a.nextID++
	alloc := &Allocation{id: a.nextID, kind: kind, label: label, size: size}
	a.live[alloc.id] = alloc
	a.counts[kind]++
	a.usedBytes += size
	if a.usedBytes > a.peakBytes {
		a.peakBytes = a.usedBytes
	}
	return alloc, nil
}

// Free returns an allocation to the budget. Freeing twice is an error.
func (a *Allocator) Free(alloc *Allocation) error {
	if alloc == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.live[alloc.id]; !ok {
		return fmt.Errorf("%w: %s %q", ErrUnknownAllocation, alloc.kind, alloc.label)
	}
	delete(a.live, alloc.id)
	a.counts[alloc.kind]--
	a.usedBytes -= alloc.size
	return nil
}

// Stats returns current memory usage statistics.
func (a *Allocator) Stats() MemoryStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var utilization float64
	if a.budgetBytes > 0 {
		utilization = float64(a.usedBytes) / float64(a.budgetBytes)
	}

	return MemoryStats{
		TotalBytes:  a.budgetBytes,
		UsedBytes:   a.usedBytes,
		PeakBytes:   a.peakBytes,
		Buffers:     a.counts[AllocationBuffer],
		Images:      a.counts[AllocationImage],
		Utilization: utilization,
	}
}

// SetBudget updates the budget. Live allocations are kept even when the new
// budget is lower than current usage; further Reserve calls fail until
// enough is freed.
func (a *Allocator) SetBudget(megabytes int) {
	if megabytes < MinMemoryMB {
		megabytes = MinMemoryMB
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	//nolint:gosec // G115: megabytes bounded by MinMemoryMB minimum
	a.budgetBytes = uint64(megabytes) * 1024 * 1024
}
