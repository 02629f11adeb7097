package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Checker is a dependency the server reports on, such as the database or the
// Redis cache.
type Checker interface {
	Ping(ctx context.Context) error
}

type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthStatus struct {
	Status       string                 `json:"status"`
	Timestamp    time.Time              `json:"timestamp"`
	Dependencies map[string]CheckStatus `json:"dependencies,omitempty"`
}

type CheckStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// AddCheck registers a named dependency for /health and /ready.
func (s *APIServer) AddCheck(name string, c Checker) {
	s.checks[name] = c
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := s.getHealthStatus(ctx)
	httpStatus := http.StatusOK
	if status.Status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	JSON(w, httpStatus, status, nil)
}

func (s *APIServer) getHealthStatus(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       "healthy",
		Timestamp:    time.Now().UTC(),
		Dependencies: make(map[string]CheckStatus, len(s.checks)),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := CheckStatus{Connected: true}
		if err := s.checks[name].Ping(ctx); err != nil {
			check = CheckStatus{Error: err.Error()}
			status.Status = "unhealthy"
			s.logger.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
		}
		status.Dependencies[name] = check
	}
	return status
}

func (s *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.getHealthStatus(ctx).Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *APIServer) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
