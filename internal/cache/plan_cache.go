package cache

import (
	"context"
	"time"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/logging"
)

// ActivePlansKey is the cache key for the public active plan listing
const ActivePlansKey = "plans:active"

// Backend is the subset of CacheService the plan cache needs
type Backend interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PlanCache caches the active investment plan listing. All failures
// degrade to cache misses; the caller falls back to the database.
type PlanCache struct {
	backend Backend
	ttl     time.Duration
	logger  *logging.Logger
}

// NewPlanCache creates a plan cache over a backend. A zero ttl uses
// the default.
func NewPlanCache(backend Backend, ttl time.Duration) *PlanCache {
	if ttl <= 0 {
		ttl = DefaultPlansTTL
	}
	return &PlanCache{
		backend: backend,
		ttl:     ttl,
		logger:  logging.WithComponent("cache"),
	}
}

// GetActivePlans returns the cached active plan listing and whether it
// was found
func (pc *PlanCache) GetActivePlans(ctx context.Context) ([]*database.InvestmentPlan, bool) {
	var plans []*database.InvestmentPlan
	if err := pc.backend.GetJSON(ctx, ActivePlansKey, &plans); err != nil {
		return nil, false
	}
	return plans, true
}

// SetActivePlans stores the active plan listing
func (pc *PlanCache) SetActivePlans(ctx context.Context, plans []*database.InvestmentPlan) {
	if err := pc.backend.SetJSON(ctx, ActivePlansKey, plans, pc.ttl); err != nil {
		pc.logger.Debug("failed to cache plans", "error", err)
	}
}

// Invalidate drops the cached listing after any plan write
func (pc *PlanCache) Invalidate(ctx context.Context) {
	if err := pc.backend.Delete(ctx, ActivePlansKey); err != nil {
		pc.logger.Debug("failed to invalidate plan cache", "error", err)
	}
}
