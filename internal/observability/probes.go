package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// liveness responds 200 while the process can serve HTTP at all.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness runs every checker in parallel under the configured timeout and
// answers 200 only when all of them pass.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		statuses = make(map[string]string, len(s.checkers))
		healthy  = true
		g        errgroup.Group
	)

	for _, checker := range s.checkers {
		g.Go(func() error {
			err := checker.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// WARN, not ERROR: the orchestrator retries and pages on sustained failure.
				s.logger.Warn("readiness check failed",
					slog.String("component", checker.Name()),
					slog.String("error", err.Error()),
				)
				statuses[checker.Name()] = "down: " + err.Error()
				healthy = false
				return nil
			}
			statuses[checker.Name()] = "up"
			return nil
		})
	}
	_ = g.Wait()

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	// The status code is already written; the body is for humans.
	_ = json.NewEncoder(w).Encode(map[string]any{"status": statuses})
}
