// Package health reports whether the accounts service can serve requests.
//
// Readiness depends on the database, Redis and the background tasks; a
// stopped reaper makes the service unready even though HTTP still answers.
//
//	hm := health.NewManager(version, 5*time.Second)
//	hm.Register(health.NewPingChecker("database", storage.Ping))
//	hm.Register(health.NewPingChecker("tasks", registry.Check))
//
//	e.GET("/healthz", hm.LiveHandler())
//	e.GET("/ready", hm.ReadyHandler())
//	e.GET("/health", hm.FullHandler())
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Result is the outcome of one dependency check.
type Result struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report lists the results in registration order.
type Report struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Result  `json:"checks"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	version  string
	timeout  time.Duration
}

// NewManager returns a manager bounding every report by timeout. A
// non-positive timeout defaults to five seconds.
func NewManager(version string, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{version: version, timeout: timeout}
}

func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check runs every checker concurrently. The service is unhealthy as soon
// as one dependency is.
func (m *Manager) Check(ctx context.Context) *Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := make([]Result, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	report := &Report{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Checks:    results,
	}
	for _, r := range results {
		if r.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
			break
		}
	}
	return report
}

func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	err := c.Check(ctx)
	r := Result{Name: c.Name(), Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		r.Status = StatusUnhealthy
		r.Message = err.Error()
	}
	return r
}

// LiveHandler answers as long as the process serves HTTP.
func (m *Manager) LiveHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler answers 503 while any dependency is unhealthy.
func (m *Manager) ReadyHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.Check(c.Request().Context()).Status != StatusHealthy {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
}

// FullHandler returns the whole report, with 503 when unhealthy.
func (m *Manager) FullHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		report := m.Check(c.Request().Context())
		code := http.StatusOK
		if report.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, report)
	}
}

// PingChecker adapts a ping function such as storage.Ping or
// tasks.Registry.Check.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string                    { return c.name }
func (c *PingChecker) Check(ctx context.Context) error { return c.ping(ctx) }
