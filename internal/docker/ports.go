package docker

import (
	"fmt"
	"sync"
)

// PortPool hands out host ports from a fixed range, excluding ports
// already bound by containers and ports reserved by in-flight runs.
type PortPool struct {
	start int
	end   int

	mu       sync.Mutex
	reserved map[int]bool
}

// NewPortPool creates a pool over [start, end).
func NewPortPool(start, end int) *PortPool {
	return &PortPool{
		start:    start,
		end:      end,
		reserved: make(map[int]bool),
	}
}

// Available returns the pool ports that are neither in use nor reserved.
func (p *PortPool) Available(used []int) []int {
	inUse := make(map[int]bool, len(used))
	for _, port := range used {
		inUse[port] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var free []int
	for port := p.start; port < p.end; port++ {
		if !inUse[port] && !p.reserved[port] {
			free = append(free, port)
		}
	}
	return free
}

// Allocate reserves count ports not present in used. The caller must
// Free them once the container is created (or the run failed).
func (p *PortPool) Allocate(used []int, count int) ([]int, error) {
	if count == 0 {
		return nil, nil
	}

	inUse := make(map[int]bool, len(used))
	for _, port := range used {
		inUse[port] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var allocated []int
	for port := p.start; port < p.end && len(allocated) < count; port++ {
		if !inUse[port] && !p.reserved[port] {
			p.reserved[port] = true
			allocated = append(allocated, port)
		}
	}

	if len(allocated) < count {
		// Roll back partial reservation
		for _, port := range allocated {
			delete(p.reserved, port)
		}
		return nil, fmt.Errorf("port pool exhausted: need %d ports in %d..%d", count, p.start, p.end)
	}
	return allocated, nil
}

// Free releases previously allocated ports.
func (p *PortPool) Free(ports []int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, port := range ports {
		delete(p.reserved, port)
	}
}

// ReservedCount returns the number of currently reserved ports.
func (p *PortPool) ReservedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reserved)
}
