// Package supervisor launches and monitors the app processes registered in
// the hub's directory. It reconciles the set of running processes against
// the registry, health-checks them over HTTP, and keeps each instance's
// status URL in the registry up to date: the URL stays empty until the
// process answers its health endpoint, which is the signal clients use to
// tell a starting instance from a reachable one.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/Helias/lightning/hub/registry"
)

const (
	defaultReconcileInterval      = 10 * time.Second
	defaultHealthCheckTimeout     = 5 * time.Second
	defaultUnhealthyThreshold     = 30 * time.Second
	defaultRestartBackoffInitial  = 1 * time.Second
	defaultRestartBackoffMax      = 30 * time.Second
	defaultGracefulShutdownPeriod = 10 * time.Second
)

// Config holds configuration for the Supervisor.
type Config struct {
	Registry  *registry.Registry
	ProjectID string
	Ports     *PortManager
	Health    HealthChecker // Optional, defaults to HTTPHealthChecker
	Logger    *slog.Logger  // Optional, defaults to slog.Default()

	ReconcileInterval      time.Duration // Optional, defaults to 10s
	HealthCheckTimeout     time.Duration // Optional, defaults to 5s
	UnhealthyThreshold     time.Duration // Optional, defaults to 30s
	RestartBackoffInitial  time.Duration // Optional, defaults to 1s
	RestartBackoffMax      time.Duration // Optional, defaults to 30s
	GracefulShutdownPeriod time.Duration // Optional, defaults to 10s
	WorkDir                string        // Optional, defaults to current directory
}

// Supervisor keeps registered app instances running.
type Supervisor struct {
	reg       *registry.Registry
	projectID string
	ports     *PortManager
	health    HealthChecker
	logger    *slog.Logger

	reconcileInterval      time.Duration
	unhealthyThreshold     time.Duration
	restartBackoffInitial  time.Duration
	restartBackoffMax      time.Duration
	gracefulShutdownPeriod time.Duration
	workDir                string

	mu    sync.Mutex
	procs map[string]*managedInstance
	wg    sync.WaitGroup
}

// New creates a Supervisor.
func New(config Config) (*Supervisor, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if config.Ports == nil {
		return nil, fmt.Errorf("port manager is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	health := config.Health
	if health == nil {
		timeout := config.HealthCheckTimeout
		if timeout == 0 {
			timeout = defaultHealthCheckTimeout
		}
		health = NewHTTPHealthChecker(timeout)
	}

	workDir := config.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	s := &Supervisor{
		reg:                    config.Registry,
		projectID:              config.ProjectID,
		ports:                  config.Ports,
		health:                 health,
		logger:                 logger.With("component", "Supervisor"),
		reconcileInterval:      config.ReconcileInterval,
		unhealthyThreshold:     config.UnhealthyThreshold,
		restartBackoffInitial:  config.RestartBackoffInitial,
		restartBackoffMax:      config.RestartBackoffMax,
		gracefulShutdownPeriod: config.GracefulShutdownPeriod,
		workDir:                workDir,
		procs:                  make(map[string]*managedInstance),
	}
	if s.reconcileInterval == 0 {
		s.reconcileInterval = defaultReconcileInterval
	}
	if s.unhealthyThreshold == 0 {
		s.unhealthyThreshold = defaultUnhealthyThreshold
	}
	if s.restartBackoffInitial == 0 {
		s.restartBackoffInitial = defaultRestartBackoffInitial
	}
	if s.restartBackoffMax == 0 {
		s.restartBackoffMax = defaultRestartBackoffMax
	}
	if s.gracefulShutdownPeriod == 0 {
		s.gracefulShutdownPeriod = defaultGracefulShutdownPeriod
	}
	return s, nil
}

// Run reconciles and health-checks until the context is cancelled, then
// stops all managed processes.
func (s *Supervisor) Run(ctx context.Context) {
	s.logger.Info("Supervisor starting", "projectID", s.projectID)

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	s.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Supervisor context cancelled, shutting down")
			s.shutdown()
			return
		case <-ticker.C:
			s.reconcile(ctx)
			s.checkHealth()
		}
	}
}

// reconcile starts processes for registered instances that are not running
// and stops processes whose instance was removed from the registry.
func (s *Supervisor) reconcile(ctx context.Context) {
	instances, err := s.reg.ListInstances(s.projectID)
	if err != nil {
		s.logger.Error("Failed to list registered instances", "error", err)
		return
	}

	desired := make(map[string]registry.Instance, len(instances))
	for _, instance := range instances {
		desired[instance.ID] = instance
	}

	s.mu.Lock()
	var toStart []registry.Instance
	for id, instance := range desired {
		proc, exists := s.procs[id]
		if !exists || proc.getState() == StateStopped || proc.getState() == StateFailed {
			toStart = append(toStart, instance)
		}
	}
	var toStop []*managedInstance
	for id, proc := range s.procs {
		if _, stillDesired := desired[id]; !stillDesired {
			toStop = append(toStop, proc)
		}
	}
	s.mu.Unlock()

	for _, instance := range toStart {
		s.startProcess(ctx, instance)
	}
	for _, proc := range toStop {
		s.logger.Info("Instance removed from registry, stopping process", "instanceID", proc.instanceID)
		s.stopProcess(proc, true)
	}
}

// startProcess launches the app binary with an allocated port and begins
// tracking it.
func (s *Supervisor) startProcess(ctx context.Context, instance registry.Instance) {
	s.mu.Lock()
	proc, exists := s.procs[instance.ID]
	if exists {
		state := proc.getState()
		if state != StateStopped && state != StateFailed {
			s.mu.Unlock()
			return
		}
		count := proc.recordRestart()
		proc.setState(StateStarting)
		delay := backoffDelay(count, s.restartBackoffInitial, s.restartBackoffMax)
		s.mu.Unlock()
		if delay > 0 {
			s.logger.Info("Applying restart backoff", "instanceID", instance.ID, "delay", delay, "restarts", count)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	} else {
		proc = &managedInstance{instanceID: instance.ID, binPath: instance.BinPath, state: StateStarting}
		s.procs[instance.ID] = proc
		s.mu.Unlock()
	}

	port, err := s.ports.Allocate()
	if err != nil {
		s.logger.Error("Failed to allocate port", "instanceID", instance.ID, "error", err)
		proc.setState(StateFailed)
		return
	}

	cmd := exec.Command(instance.BinPath, "-port", fmt.Sprintf("%d", port))
	cmd.Dir = s.workDir
	cmd.Env = append(os.Environ(), fmt.Sprintf("LIGHTNING_INSTANCE_ID=%s", instance.ID))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.logger.Error("Failed to open stdout pipe", "instanceID", instance.ID, "error", err)
		s.ports.Release(port)
		proc.setState(StateFailed)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.logger.Error("Failed to open stderr pipe", "instanceID", instance.ID, "error", err)
		stdout.Close()
		s.ports.Release(port)
		proc.setState(StateFailed)
		return
	}

	if err := cmd.Start(); err != nil {
		s.logger.Error("Failed to start process", "instanceID", instance.ID, "bin", instance.BinPath, "error", err)
		s.ports.Release(port)
		proc.setState(StateFailed)
		s.updateRegistryStatus(instance.ID, "", registry.PhaseFailed)
		return
	}

	proc.mu.Lock()
	proc.cmd = cmd
	proc.port = port
	proc.state = StateStarting
	proc.mu.Unlock()

	s.logger.Info("Process started", "instanceID", instance.ID, "pid", cmd.Process.Pid, "port", port)
	s.updateRegistryStatus(instance.ID, "", registry.PhaseStarting)

	s.forwardOutput(instance.ID, "stdout", stdout)
	s.forwardOutput(instance.ID, "stderr", stderr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := cmd.Wait()
		s.handleExit(proc, err)
	}()
}

// forwardOutput copies a process output stream into the supervisor log.
func (s *Supervisor) forwardOutput(instanceID, stream string, pipe io.ReadCloser) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer pipe.Close()
		scanner := bufio.NewScanner(pipe)
		for scanner.Scan() {
			s.logger.Info("Process output", "instanceID", instanceID, "stream", stream, "line", scanner.Text())
		}
	}()
}

// handleExit records a process exit. Intentional stops keep their state;
// unexpected exits are marked failed so the next reconcile restarts them.
func (s *Supervisor) handleExit(proc *managedInstance, exitErr error) {
	state := proc.getState()
	s.logger.Info("Process exited", "instanceID", proc.instanceID, "state", state.String(), "error", exitErr)

	if state == StateStopping || state == StateStopped {
		return
	}

	proc.mu.Lock()
	port := proc.port
	proc.port = 0
	proc.state = StateFailed
	proc.mu.Unlock()

	s.ports.Release(port)
	s.updateRegistryStatus(proc.instanceID, "", registry.PhaseFailed)
}

// stopProcess terminates a process, SIGTERM first and SIGKILL after the
// grace period.
func (s *Supervisor) stopProcess(proc *managedInstance, forget bool) {
	proc.mu.Lock()
	cmd := proc.cmd
	port := proc.port
	proc.state = StateStopping
	proc.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			s.logger.Warn("Failed to signal process", "instanceID", proc.instanceID, "error", err)
		}

		done := make(chan struct{})
		go func() {
			cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.gracefulShutdownPeriod):
			s.logger.Warn("Process did not exit gracefully, killing", "instanceID", proc.instanceID)
			cmd.Process.Kill()
			<-done
		}
	}

	proc.setState(StateStopped)
	s.ports.Release(port)
	s.updateRegistryStatus(proc.instanceID, "", registry.PhaseStopped)

	if forget {
		s.mu.Lock()
		delete(s.procs, proc.instanceID)
		s.mu.Unlock()
	}
}

// checkHealth probes every tracked process and moves it between starting,
// running and unhealthy. The registry status URL is published on the first
// successful check and cleared when the process is restarted.
func (s *Supervisor) checkHealth() {
	s.mu.Lock()
	toCheck := make([]*managedInstance, 0, len(s.procs))
	for _, proc := range s.procs {
		state := proc.getState()
		if state == StateStarting || state == StateRunning || state == StateUnhealthy {
			toCheck = append(toCheck, proc)
		}
	}
	s.mu.Unlock()

	for _, proc := range toCheck {
		proc.mu.Lock()
		port := proc.port
		proc.mu.Unlock()

		err := s.health.Check(port)
		if err == nil {
			if proc.getState() != StateRunning {
				s.logger.Info("Process is healthy", "instanceID", proc.instanceID, "port", port)
				proc.setState(StateRunning)
				proc.resetRestarts()
				s.updateRegistryStatus(proc.instanceID, fmt.Sprintf("http://localhost:%d", port), registry.PhaseRunning)
			}
			continue
		}

		unhealthyFor := proc.markUnhealthy(time.Now())
		s.logger.Warn("Health check failed", "instanceID", proc.instanceID, "unhealthyFor", unhealthyFor, "error", err)
		if unhealthyFor >= s.unhealthyThreshold {
			s.logger.Error("Process persistently unhealthy, restarting", "instanceID", proc.instanceID)
			s.stopProcess(proc, false)
			proc.setState(StateFailed)
		}
	}
}

// updateRegistryStatus publishes an instance's phase and status URL. A
// failure to write is logged but never interrupts supervision; the next
// state change will publish again.
func (s *Supervisor) updateRegistryStatus(instanceID, statusURL, phase string) {
	if err := s.reg.SetInstanceStatus(instanceID, statusURL, phase); err != nil {
		s.logger.Error("Failed to update instance status", "instanceID", instanceID, "phase", phase, "error", err)
	}
}

// shutdown stops all managed processes.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	procs := make([]*managedInstance, 0, len(s.procs))
	for _, proc := range s.procs {
		procs = append(procs, proc)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, proc := range procs {
		state := proc.getState()
		if state == StateStopped || state == StateFailed {
			continue
		}
		wg.Add(1)
		go func(p *managedInstance) {
			defer wg.Done()
			s.stopProcess(p, true)
		}(proc)
	}
	wg.Wait()
	s.wg.Wait()
	s.logger.Info("Supervisor stopped")
}
