package discovery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/gateway/registry"
	"github.com/aegisframework/aegis/types"
)

// HealthChecker probes resource endpoints. A probe is a GET against the
// endpoint's /health path; any 2xx response within the timeout passes.
type HealthChecker struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthChecker creates a checker with the given per-probe timeout.
func NewHealthChecker(timeout time.Duration, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger.With(zap.String("component", "health_checker")),
	}
}

// Check probes the endpoint. It returns HEALTH_CHECK_FAILED on any transport
// error or non-2xx status.
func (h *HealthChecker) Check(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	url := strings.TrimRight(endpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewError(types.ErrHealthCheckFailed, "invalid endpoint").WithCause(err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrHealthCheckFailed, "health probe failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewError(types.ErrHealthCheckFailed,
			fmt.Sprintf("health probe returned %d", resp.StatusCode))
	}
	return nil
}

// Revalidator periodically re-probes inactive records and reactivates the
// ones that respond. Records deactivated by an operator are swept too; a
// resource that answers its health endpoint is considered available.
type Revalidator struct {
	store    *registry.Store
	checker  *HealthChecker
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewRevalidator creates a revalidation sweep. interval <= 0 disables it.
func NewRevalidator(store *registry.Store, checker *HealthChecker, interval time.Duration, logger *zap.Logger) *Revalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Revalidator{
		store:    store,
		checker:  checker,
		interval: interval,
		logger:   logger.With(zap.String("component", "revalidator")),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (r *Revalidator) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.done:
				return
			case <-ticker.C:
				r.Sweep(ctx)
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (r *Revalidator) Stop() {
	close(r.done)
}

// Sweep probes every inactive record once and reactivates the responders.
// It returns the number of reactivated records.
func (r *Revalidator) Sweep(ctx context.Context) int {
	reactivated := 0
	for _, rec := range r.store.List() {
		if rec.Active {
			continue
		}
		err := r.checker.Check(ctx, rec.Endpoint)
		now := time.Now()
		if err != nil {
			_ = r.store.Mutate(rec.ID, func(live *types.ResourceRecord) {
				live.LastTestedAt = now
			})
			continue
		}
		merr := r.store.Mutate(rec.ID, func(live *types.ResourceRecord) {
			live.Active = true
			live.LastTestedAt = now
		})
		if merr == nil {
			reactivated++
			r.logger.Info("resource reactivated", zap.String("resource_id", rec.ID))
		}
	}
	return reactivated
}
