package monitoring

import (
	"context"
	"sync"
	"time"
)

type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
}

type HealthCheck struct {
	Name    string
	Check   func(ctx context.Context) error
	Timeout time.Duration
	// Optional checks report degraded instead of unhealthy.
	Optional bool
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if check.Timeout <= 0 {
		check.Timeout = 2 * time.Second
	}
	h.checks = append(h.checks, check)
}

// CheckAll runs every check in parallel.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	type result struct {
		check HealthCheck
		err   error
	}
	results := make(chan result, len(checks))
	for _, check := range checks {
		go func(check HealthCheck) {
			checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
			defer cancel()
			results <- result{check: check, err: check.Check(checkCtx)}
		}(check)
	}

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}
	for range checks {
		r := <-results
		if r.err == nil {
			status.Checks[r.check.Name] = StatusHealthy
			continue
		}
		status.Checks[r.check.Name] = r.err.Error()
		if r.check.Optional {
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		} else {
			status.Status = StatusUnhealthy
		}
	}
	return status
}

// IsReady reports whether every required check passes.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status != StatusUnhealthy
}
