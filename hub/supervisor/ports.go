package supervisor

import (
	"fmt"
	"net"
	"sync"
)

// PortManager allocates TCP listen ports for app instances from a fixed
// range. A candidate port is probed with a live listener before it is
// handed out, so ports taken by unrelated processes are skipped.
type PortManager struct {
	mu        sync.Mutex
	minPort   int
	maxPort   int
	allocated map[int]bool
	next      int
}

// NewPortManager creates a PortManager for the inclusive range
// [minPort, maxPort].
func NewPortManager(minPort, maxPort int) (*PortManager, error) {
	if minPort <= 0 || maxPort <= 0 || minPort > maxPort {
		return nil, fmt.Errorf("invalid port range: min %d, max %d", minPort, maxPort)
	}
	return &PortManager{
		minPort:   minPort,
		maxPort:   maxPort,
		allocated: make(map[int]bool),
		next:      minPort,
	}, nil
}

// Allocate reserves an available port from the range.
func (pm *PortManager) Allocate() (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	rangeSize := pm.maxPort - pm.minPort + 1
	for attempt := 0; attempt < rangeSize; attempt++ {
		candidate := pm.next
		pm.next++
		if pm.next > pm.maxPort {
			pm.next = pm.minPort
		}

		if pm.allocated[candidate] {
			continue
		}

		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", candidate))
		if err != nil {
			// Busy outside our bookkeeping, try the next one.
			continue
		}
		listener.Close()

		pm.allocated[candidate] = true
		return candidate, nil
	}

	return 0, fmt.Errorf("no available ports in range [%d-%d]", pm.minPort, pm.maxPort)
}

// Release returns a port to the pool. Ports outside the managed range are
// ignored.
func (pm *PortManager) Release(port int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if port < pm.minPort || port > pm.maxPort {
		return
	}
	delete(pm.allocated, port)
}
