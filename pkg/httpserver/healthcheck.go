package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/quotagate/pkg/logger"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler serves liveness and readiness.
//
// Without checks it always answers 200 {"status":"ok"}. Otherwise every check
// runs concurrently under timeout; any failure answers 503 and names the
// failing dependency.
func HealthCheckHandler(log *slog.Logger, timeout time.Duration, checks ...HealthCheck) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "ok"}
		status := http.StatusOK

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			var (
				mu sync.Mutex
				wg sync.WaitGroup
			)
			report.Checks = make(map[string]string, len(checks))
			for _, c := range checks {
				wg.Add(1)
				go func() {
					defer wg.Done()
					result := "ok"
					if err := c.Check(ctx); err != nil {
						log.ErrorContext(ctx, "readiness check failed", logger.Component(c.Name), logger.Error(err))
						result = "unavailable"
					}
					mu.Lock()
					report.Checks[c.Name] = result
					mu.Unlock()
				}()
			}
			wg.Wait()

			for _, result := range report.Checks {
				if result != "ok" {
					report.Status = "unavailable"
					status = http.StatusServiceUnavailable
					break
				}
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
