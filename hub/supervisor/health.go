package supervisor

import (
	"fmt"
	"net/http"
	"time"
)

// HealthChecker probes a managed app process. It reports nil when the
// process answers its health endpoint successfully.
type HealthChecker interface {
	Check(port int) error
}

// HTTPHealthChecker probes http://localhost:<port>/api/v1/health.
type HTTPHealthChecker struct {
	client *http.Client
}

// NewHTTPHealthChecker creates a checker with the given per-request
// timeout.
func NewHTTPHealthChecker(timeout time.Duration) *HTTPHealthChecker {
	return &HTTPHealthChecker{
		client: &http.Client{Timeout: timeout},
	}
}

// Check implements HealthChecker.
func (h *HTTPHealthChecker) Check(port int) error {
	if port <= 0 {
		return fmt.Errorf("invalid port %d for health check", port)
	}

	resp, err := h.client.Get(fmt.Sprintf("http://localhost:%d/api/v1/health", port))
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %s", resp.Status)
	}
	return nil
}
