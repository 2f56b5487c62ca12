package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"investment-backoffice/internal/database"
)

type mockStore struct {
	mu     sync.Mutex
	orders map[string]*database.InvestmentOrder
	plans  map[string]*float64

	// afterList runs after ListMaturedDue releases the lock, letting
	// tests interleave a concurrent state change
	afterList func()
}

func newMockStore() *mockStore {
	return &mockStore{
		orders: make(map[string]*database.InvestmentOrder),
		plans:  make(map[string]*float64),
	}
}

func (m *mockStore) addActiveOrder(id, planID string, amount float64, maturityDate time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id] = &database.InvestmentOrder{
		ID: id, UserID: "u1", PlanID: planID, Amount: amount,
		Status: database.OrderActive, MaturityDate: &maturityDate,
	}
}

func (m *mockStore) ListMaturedDue(ctx context.Context, now time.Time) ([]*database.OrderDetail, error) {
	m.mu.Lock()
	var due []*database.OrderDetail
	for _, o := range m.orders {
		if o.Status != database.OrderActive || o.MaturityDate == nil || o.MaturityDate.After(now) {
			continue
		}
		d := &database.OrderDetail{InvestmentOrder: *o}
		d.PlanFinalRate = m.plans[o.PlanID]
		d.UserEmail = "u1@example.com"
		d.PlanName = "Plan " + o.PlanID
		due = append(due, d)
	}
	m.mu.Unlock()

	if m.afterList != nil {
		m.afterList()
	}
	return due, nil
}

func (m *mockStore) ListAdminEmails(ctx context.Context) ([]string, error) {
	return []string{"admin@example.com"}, nil
}

func (m *mockStore) MatureOrder(ctx context.Context, orderID string, rate *float64) (*database.InvestmentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if o.Status != database.OrderActive {
		return nil, database.ErrInvalidTransition
	}
	if rate != nil {
		r := *rate
		final := o.Amount * (1 + r/100)
		o.FinalInterestRate = &r
		o.FinalAmount = &final
	}
	o.Status = database.OrderMatured
	cp := *o
	return &cp, nil
}

type adminMail struct {
	recipients []string
	planName   string
	priced     bool
}

type mockMailer struct {
	mu         sync.Mutex
	userMails  []string
	adminMails []adminMail
	sent       chan struct{}
}

func newMockMailer() *mockMailer {
	return &mockMailer{sent: make(chan struct{}, 16)}
}

func (m *mockMailer) SendOrderMaturedEmail(ctx context.Context, to, planName string, amount float64, maturityDate time.Time) {
	m.mu.Lock()
	m.userMails = append(m.userMails, to)
	m.mu.Unlock()
	m.sent <- struct{}{}
}

func (m *mockMailer) SendOrderMaturedAdminEmail(ctx context.Context, recipients []string, planName string, amount float64, priced bool) {
	m.mu.Lock()
	m.adminMails = append(m.adminMails, adminMail{recipients: recipients, planName: planName, priced: priced})
	m.mu.Unlock()
	m.sent <- struct{}{}
}

func (m *mockMailer) waitForSends(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for send %d of %d", i+1, n)
		}
	}
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(24 * time.Hour)

	t.Run("matures only due orders", func(t *testing.T) {
		store := newMockStore()
		store.addActiveOrder("due", "p1", 1000, past)
		store.addActiveOrder("early", "p1", 1000, future)
		sched := NewScheduler(store, nil, nil, DefaultConfig())

		result, err := sched.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if result.Matured != 1 {
			t.Errorf("matured: got %d, want 1", result.Matured)
		}
		if store.orders["due"].Status != database.OrderMatured {
			t.Errorf("due order status: %s", store.orders["due"].Status)
		}
		if store.orders["early"].Status != database.OrderActive {
			t.Errorf("early order status: %s", store.orders["early"].Status)
		}
	})

	t.Run("prices order when plan is finalized", func(t *testing.T) {
		store := newMockStore()
		rate := 8.0
		store.plans["p1"] = &rate
		store.addActiveOrder("o1", "p1", 1000, past)
		sched := NewScheduler(store, nil, nil, DefaultConfig())

		if _, err := sched.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		o := store.orders["o1"]
		if o.FinalAmount == nil || *o.FinalAmount != 1080 {
			t.Errorf("final amount: got %v, want 1080", o.FinalAmount)
		}
	})

	t.Run("leaves order unpriced when plan has no rate", func(t *testing.T) {
		store := newMockStore()
		store.addActiveOrder("o1", "p1", 1000, past)
		sched := NewScheduler(store, nil, nil, DefaultConfig())

		if _, err := sched.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		o := store.orders["o1"]
		if o.Status != database.OrderMatured {
			t.Errorf("status: %s", o.Status)
		}
		if o.FinalAmount != nil {
			t.Errorf("expected unpriced order, got final amount %v", *o.FinalAmount)
		}
	})

	t.Run("second pass is a no-op", func(t *testing.T) {
		store := newMockStore()
		store.addActiveOrder("o1", "p1", 1000, past)
		sched := NewScheduler(store, nil, nil, DefaultConfig())

		first, err := sched.RunOnce(ctx)
		if err != nil {
			t.Fatalf("first pass failed: %v", err)
		}
		if first.Matured != 1 {
			t.Errorf("first pass matured: got %d, want 1", first.Matured)
		}

		second, err := sched.RunOnce(ctx)
		if err != nil {
			t.Fatalf("second pass failed: %v", err)
		}
		if second.Matured != 0 || second.Skipped != 0 || second.Failed != 0 {
			t.Errorf("second pass not a no-op: %+v", second)
		}
	})

	t.Run("notifies staff and owner of a matured order", func(t *testing.T) {
		store := newMockStore()
		store.addActiveOrder("o1", "p1", 1000, past)
		mailer := newMockMailer()
		sched := NewScheduler(store, mailer, nil, DefaultConfig())

		if _, err := sched.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		mailer.waitForSends(t, 2)

		mailer.mu.Lock()
		defer mailer.mu.Unlock()
		if len(mailer.userMails) != 1 || mailer.userMails[0] != "u1@example.com" {
			t.Errorf("user mails: %v", mailer.userMails)
		}
		if len(mailer.adminMails) != 1 {
			t.Fatalf("admin mails: got %d, want 1", len(mailer.adminMails))
		}
		am := mailer.adminMails[0]
		if len(am.recipients) != 1 || am.recipients[0] != "admin@example.com" {
			t.Errorf("admin recipients: %v", am.recipients)
		}
		if am.priced {
			t.Error("order matured without a plan rate should be reported unpriced")
		}
	})

	t.Run("reports priced maturity to staff when plan is finalized", func(t *testing.T) {
		store := newMockStore()
		rate := 8.0
		store.plans["p1"] = &rate
		store.addActiveOrder("o1", "p1", 1000, past)
		mailer := newMockMailer()
		sched := NewScheduler(store, mailer, nil, DefaultConfig())

		if _, err := sched.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		mailer.waitForSends(t, 2)

		mailer.mu.Lock()
		defer mailer.mu.Unlock()
		if len(mailer.adminMails) != 1 || !mailer.adminMails[0].priced {
			t.Errorf("expected one priced admin notification, got %+v", mailer.adminMails)
		}
	})

	t.Run("counts a lost race as skipped", func(t *testing.T) {
		store := newMockStore()
		store.addActiveOrder("o1", "p1", 1000, past)
		sched := NewScheduler(store, nil, nil, DefaultConfig())

		// Simulate an admin action landing between the scan and the update
		store.afterList = func() {
			store.mu.Lock()
			store.orders["o1"].Status = database.OrderMatured
			store.mu.Unlock()
		}

		result, err := sched.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if result.Skipped != 1 {
			t.Errorf("skipped: got %d, want 1", result.Skipped)
		}
		if result.Matured != 0 || result.Failed != 0 {
			t.Errorf("unexpected counts: %+v", result)
		}
	})
}

func TestSchedulerLifecycle(t *testing.T) {
	store := newMockStore()
	sched := NewScheduler(store, nil, nil, Config{Interval: time.Hour, RunTimeout: time.Second})

	if err := sched.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Error("expected running after Start")
	}
	if err := sched.Start(); err == nil {
		t.Error("second Start should fail")
	}

	if err := sched.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if sched.IsRunning() {
		t.Error("expected stopped after Stop")
	}
	if err := sched.Stop(); err == nil {
		t.Error("second Stop should fail")
	}

	// The scheduler can be restarted
	if err := sched.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop after restart failed: %v", err)
	}
}
