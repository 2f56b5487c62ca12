package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"investment-backoffice/internal/database"
)

// MockBackend mocks the cache backend for testing
type MockBackend struct {
	mu          sync.RWMutex
	data        map[string]string
	setCalls    []SetCall
	deleteCalls []string
	getErr      error
	setErr      error
	deleteErr   error
}

// SetCall tracks SetJSON invocations
type SetCall struct {
	Key string
	TTL time.Duration
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		data: make(map[string]string),
	}
}

func (m *MockBackend) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}

	m.mu.RLock()
	val, ok := m.data[key]
	m.mu.RUnlock()

	if !ok {
		return errors.New("redis: nil")
	}
	return json.Unmarshal([]byte(val), dest)
}

func (m *MockBackend) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.setCalls = append(m.setCalls, SetCall{Key: key, TTL: ttl})
	m.data[key] = string(data)
	m.mu.Unlock()
	return nil
}

func (m *MockBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	m.deleteCalls = append(m.deleteCalls, key)
	delete(m.data, key)
	m.mu.Unlock()
	return m.deleteErr
}

func TestPlanCache(t *testing.T) {
	ctx := context.Background()

	plans := []*database.InvestmentPlan{
		{ID: "p1", Name: "Fixed 90", MinInvestmentAmount: 500, MaturityPeriodDays: 90, IsActive: true},
		{ID: "p2", Name: "Fixed 180", MinInvestmentAmount: 1000, MaturityPeriodDays: 180, IsActive: true},
	}

	t.Run("round trips the plan listing", func(t *testing.T) {
		backend := NewMockBackend()
		pc := NewPlanCache(backend, time.Minute)

		if _, ok := pc.GetActivePlans(ctx); ok {
			t.Error("expected a miss on empty cache")
		}

		pc.SetActivePlans(ctx, plans)

		got, ok := pc.GetActivePlans(ctx)
		if !ok {
			t.Fatal("expected a hit after set")
		}
		if len(got) != 2 || got[0].ID != "p1" || got[1].Name != "Fixed 180" {
			t.Errorf("unexpected cached plans: %+v", got)
		}

		if len(backend.setCalls) != 1 || backend.setCalls[0].TTL != time.Minute {
			t.Errorf("unexpected set calls: %+v", backend.setCalls)
		}
	})

	t.Run("invalidate drops the listing", func(t *testing.T) {
		backend := NewMockBackend()
		pc := NewPlanCache(backend, time.Minute)

		pc.SetActivePlans(ctx, plans)
		pc.Invalidate(ctx)

		if _, ok := pc.GetActivePlans(ctx); ok {
			t.Error("expected a miss after invalidation")
		}
		if len(backend.deleteCalls) != 1 || backend.deleteCalls[0] != ActivePlansKey {
			t.Errorf("unexpected delete calls: %+v", backend.deleteCalls)
		}
	})

	t.Run("backend failures degrade to misses", func(t *testing.T) {
		backend := NewMockBackend()
		backend.getErr = errors.New("redis unavailable (circuit breaker open)")
		backend.setErr = errors.New("redis unavailable (circuit breaker open)")
		pc := NewPlanCache(backend, time.Minute)

		pc.SetActivePlans(ctx, plans)
		if _, ok := pc.GetActivePlans(ctx); ok {
			t.Error("expected a miss when backend is down")
		}
	})

	t.Run("zero ttl uses the default", func(t *testing.T) {
		backend := NewMockBackend()
		pc := NewPlanCache(backend, 0)

		pc.SetActivePlans(ctx, plans)
		if len(backend.setCalls) != 1 || backend.setCalls[0].TTL != DefaultPlansTTL {
			t.Errorf("unexpected TTL: %+v", backend.setCalls)
		}
	})
}
