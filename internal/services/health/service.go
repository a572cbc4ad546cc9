package health

import (
	"context"
	"sort"
	"time"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Service encapsulates health-related checks.
type Service struct {
	checks map[string]Check
}

// NewService constructs a new health service.
func NewService() *Service {
	return &Service{checks: make(map[string]Check)}
}

// Register adds a named dependency check.
func (s *Service) Register(name string, check Check) {
	if check == nil {
		return
	}
	s.checks[name] = check
}

// Status runs every check and reports per-dependency results.
func (s *Service) Status(ctx context.Context) (map[string]any, bool) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ok := true
	deps := make(map[string]string, len(names))
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := s.checks[name](cctx)
		cancel()
		if err != nil {
			ok = false
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}
	payload := map[string]any{"ok": ok}
	if len(deps) > 0 {
		payload["dependencies"] = deps
	}
	return payload, ok
}
