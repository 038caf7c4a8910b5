// Package health aggregates dependency checks for the /health endpoint.
package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every component failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names.
const (
	ComponentIndex    = "index"
	ComponentPostgres = "postgres"
)

const checkTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type component struct {
	name   string
	pinger Pinger
}

// Service coordinates health checks.
type Service struct {
	components []component
}

// New creates a Service checking the search index (Redis). Add the system
// of record with WithPostgres in processes that use it.
func New(index Pinger) *Service {
	return &Service{components: []component{{name: ComponentIndex, pinger: index}}}
}

// WithPostgres adds the system-of-record check. A nil pinger is ignored.
func (s *Service) WithPostgres(p Pinger) *Service {
	if p != nil {
		s.components = append(s.components, component{name: ComponentPostgres, pinger: p})
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.components))
	failed := 0

	for _, c := range s.components {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.pinger.Ping(cctx)
		cancel()

		if err != nil {
			checks[c.name] = CheckError
			failed++
		} else {
			checks[c.name] = CheckOK
		}
	}

	status := Healthy
	switch {
	case failed == len(s.components) && failed > 0:
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}
