// Package health aggregates liveness checks over the engine's
// backing services (event sink, cache, graph store).
package health

import (
	"context"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes one backing service
type Check interface {
	Name() string
	Check(ctx context.Context) Result
}

// Result is the outcome of a single check
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// CheckFunc adapts a ping function into a named Check
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string { return c.CheckName }

func (c CheckFunc) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.Fn(ctx)
	result := Result{
		Name:     c.CheckName,
		Status:   StatusHealthy,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// Checker runs all registered checks concurrently
type Checker struct {
	mu     sync.RWMutex
	checks []Check
}

func NewChecker() *Checker {
	return &Checker{checks: make([]Check, 0)}
}

func (hc *Checker) Register(check Check) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, check)
}

// RegisterFunc registers a ping function under a name
func (hc *Checker) RegisterFunc(name string, fn func(ctx context.Context) error) {
	hc.Register(CheckFunc{CheckName: name, Fn: fn})
}

// Check runs every registered check and returns per-check results
func (hc *Checker) Check(ctx context.Context) map[string]Result {
	hc.mu.RLock()
	checks := make([]Check, len(hc.checks))
	copy(checks, hc.checks)
	hc.mu.RUnlock()

	results := make(map[string]Result, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, c := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			result := c.Check(ctx)
			mu.Lock()
			results[result.Name] = result
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	return results
}

// Overall folds per-check results into one status: unhealthy when any
// check failed, healthy only when all passed.
func Overall(results map[string]Result) Status {
	if len(results) == 0 {
		return StatusHealthy
	}
	status := StatusHealthy
	for _, r := range results {
		if r.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if r.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
