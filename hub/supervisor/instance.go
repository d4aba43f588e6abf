package supervisor

import (
	"os/exec"
	"sync"
	"time"
)

// State describes the lifecycle state of a managed app process.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateUnhealthy
	StateStopping
	StateStopped
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateUnhealthy:
		return "unhealthy"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// managedInstance tracks one launched app process.
type managedInstance struct {
	mu sync.Mutex

	instanceID string
	binPath    string
	port       int
	cmd        *exec.Cmd

	state          State
	restartCount   int
	unhealthySince time.Time
}

func (mi *managedInstance) getState() State {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	return mi.state
}

func (mi *managedInstance) setState(state State) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.state = state
	if state != StateUnhealthy {
		mi.unhealthySince = time.Time{}
	}
}

func (mi *managedInstance) markUnhealthy(now time.Time) time.Duration {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if mi.state != StateUnhealthy {
		mi.state = StateUnhealthy
		mi.unhealthySince = now
	}
	return now.Sub(mi.unhealthySince)
}

func (mi *managedInstance) recordRestart() int {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.restartCount++
	return mi.restartCount
}

func (mi *managedInstance) resetRestarts() {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.restartCount = 0
}

// backoffDelay computes the exponential restart delay for the given restart
// count, capped at maxDelay.
func backoffDelay(restartCount int, initialDelay, maxDelay time.Duration) time.Duration {
	if restartCount <= 0 {
		return 0
	}
	delay := initialDelay
	for i := 1; i < restartCount; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	return delay
}
