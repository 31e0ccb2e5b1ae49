package momo

import (
	"sync/atomic"
)

// DefaultPortBase is where a zero-value PortAllocator starts.
const DefaultPortBase = 55000

// defaultMetricsPort is used when no allocator is configured.
const defaultMetricsPort = 9090

// PortAllocator hands out increasing port numbers. It never reuses a
// number and is safe for concurrent use. It does not probe whether a
// port is actually free.
type PortAllocator struct {
	start int
	next  atomic.Int64
}

// NewPortAllocator returns an allocator whose first port is start.
// A start <= 0 selects DefaultPortBase.
func NewPortAllocator(start int) *PortAllocator {
	if start <= 0 {
		start = DefaultPortBase
	}
	return &PortAllocator{start: start}
}

// Next returns the next port.
func (p *PortAllocator) Next() int {
	start := p.start
	if start <= 0 {
		start = DefaultPortBase
	}
	return start + int(p.next.Add(1)-1)
}
