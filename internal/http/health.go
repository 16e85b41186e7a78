package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/lifecycle"
	"github.com/kjstillabower/sunshine-wear/internal/traffic"
)

// HealthConfig holds lifecycle thresholds and dependency checks.
type HealthConfig struct {
	Service              string
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// Checks are dependency probes such as the forecast store or memcached.
	// Any failure marks the service degraded.
	Checks map[string]func(ctx context.Context) error
}

func (c HealthConfig) overloadThreshold() int {
	if c.RateLimitRPS <= 0 {
		return 0
	}
	return int(float64(c.RateLimitRPS) * c.OverloadWindow.Seconds() * float64(c.OverloadThresholdPct) / 100)
}

// HealthResult is the computed status and why.
type HealthResult struct {
	Status     string
	StatusCode int
	Reason     string
	Checks     map[string]string
}

// Health serves GET /health and logs status transitions.
type Health struct {
	cfg    HealthConfig
	logger *zap.Logger

	mu   sync.Mutex
	prev string
}

func NewHealth(cfg HealthConfig, logger *zap.Logger) *Health {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Service == "" {
		cfg.Service = "sunshine-wear"
	}
	return &Health{cfg: cfg, logger: logger}
}

func (h *Health) config() HealthConfig {
	if h == nil {
		return HealthConfig{}
	}
	return h.cfg
}

// Compute evaluates status in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Health) Compute(ctx context.Context) HealthResult {
	checks := make(map[string]string)
	failed := ""
	names := make([]string, 0, len(h.cfg.Checks))
	for name := range h.cfg.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.cfg.Checks[name](ctx); err != nil {
			checks[name] = "unhealthy"
			if failed == "" {
				failed = name
			}
			continue
		}
		checks[name] = "healthy"
	}

	if lifecycle.IsShuttingDown() {
		return HealthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if threshold := h.cfg.overloadThreshold(); threshold > 0 && traffic.DenialCount(h.cfg.OverloadWindow) > threshold {
		return HealthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold", checks}
	}
	if failed != "" {
		return HealthResult{"degraded", http.StatusServiceUnavailable, "check_failed:" + failed, checks}
	}
	if h.cfg.DegradedWindow > 0 && h.cfg.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(h.cfg.DegradedErrorPct) {
			return HealthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}
	return HealthResult{"healthy", http.StatusOK, "", checks}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result := h.Compute(r.Context())

	h.mu.Lock()
	if h.prev != "" && h.prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", h.prev),
			zap.String("current_status", result.Status),
			zap.String("reason", result.Reason))
	}
	h.prev = result.Status
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    result.Status,
		"service":   h.cfg.Service,
		"version":   "dev",
		"checks":    result.Checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
