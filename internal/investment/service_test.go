package investment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"investment-backoffice/internal/database"
)

// mockStore is an in-memory Store with the same state-machine
// semantics as the database repository
type mockStore struct {
	mu           sync.Mutex
	users        map[string]*database.User
	plans        map[string]*database.InvestmentPlan
	orders       map[string]*database.InvestmentOrder
	receipts     map[string]*database.PaymentReceipt
	transactions map[string]*database.Transaction
	nextID       int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:        make(map[string]*database.User),
		plans:        make(map[string]*database.InvestmentPlan),
		orders:       make(map[string]*database.InvestmentOrder),
		receipts:     make(map[string]*database.PaymentReceipt),
		transactions: make(map[string]*database.Transaction),
	}
}

func (m *mockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockStore) addUser(id string, balance float64) *database.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &database.User{
		ID:             id,
		Email:          id + "@example.com",
		Name:           "User " + id,
		Role:           database.RoleUser,
		AccountBalance: balance,
		IsActive:       true,
	}
	m.users[id] = u
	return u
}

func (m *mockStore) addPlan(id string, minAmount float64, periodDays int, minRate, maxRate float64, active bool) *database.InvestmentPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &database.InvestmentPlan{
		ID:                  id,
		Name:                "Plan " + id,
		MinInvestmentAmount: minAmount,
		MaturityPeriodDays:  periodDays,
		MinInterestRate:     minRate,
		MaxInterestRate:     maxRate,
		IsActive:            active,
	}
	m.plans[id] = p
	return p
}

func (m *mockStore) CreatePlan(ctx context.Context, p *database.InvestmentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id("plan")
	p.CreatedAt = time.Now()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *mockStore) GetPlanByID(ctx context.Context, planID string) (*database.InvestmentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListPlans(ctx context.Context, activeOnly bool) ([]*database.InvestmentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*database.InvestmentPlan
	for _, p := range m.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		list = append(list, &cp)
	}
	return list, nil
}

func (m *mockStore) UpdatePlan(ctx context.Context, p *database.InvestmentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.plans[p.ID]
	if !ok {
		return database.ErrNotFound
	}
	rate := existing.FinalInterestRate
	cp := *p
	cp.FinalInterestRate = rate
	m.plans[p.ID] = &cp
	return nil
}

func (m *mockStore) SetPlanFinalRate(ctx context.Context, planID string, rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[planID]
	if !ok {
		return database.ErrNotFound
	}
	if p.FinalInterestRate != nil {
		return database.ErrPlanAlreadyFinalized
	}
	p.FinalInterestRate = &rate
	return nil
}

func (m *mockStore) DeletePlan(ctx context.Context, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[planID]; !ok {
		return database.ErrNotFound
	}
	for _, o := range m.orders {
		if o.PlanID == planID {
			return database.ErrPlanHasOpenOrders
		}
	}
	delete(m.plans, planID)
	return nil
}

func (m *mockStore) CreateOrder(ctx context.Context, o *database.InvestmentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o.ID = m.id("order")
	o.CreatedAt = time.Now()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockStore) CreateOrderWithBalanceDebit(ctx context.Context, o *database.InvestmentOrder, debit *database.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[o.UserID]
	if !ok {
		return database.ErrNotFound
	}
	if u.AccountBalance < o.Amount {
		return database.ErrInsufficientBalance
	}
	u.AccountBalance -= o.Amount

	o.ID = m.id("order")
	o.CreatedAt = time.Now()
	ocp := *o
	m.orders[o.ID] = &ocp

	now := time.Now()
	debit.ID = m.id("tx")
	debit.Status = database.TransactionCompleted
	debit.RelatedOrderID = &o.ID
	debit.ProcessedAt = &now
	tcp := *debit
	m.transactions[debit.ID] = &tcp
	return nil
}

func (m *mockStore) GetOrderByID(ctx context.Context, orderID string) (*database.InvestmentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *mockStore) GetOrderDetail(ctx context.Context, orderID string) (*database.OrderDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	d := &database.OrderDetail{InvestmentOrder: *o}
	if p, ok := m.plans[o.PlanID]; ok {
		d.PlanName = p.Name
		d.PlanFinalRate = p.FinalInterestRate
		d.MaturityPeriodDays = p.MaturityPeriodDays
	}
	if u, ok := m.users[o.UserID]; ok {
		d.UserEmail = u.Email
		d.UserName = u.Name
	}
	return d, nil
}

func (m *mockStore) ListOrders(ctx context.Context, filter database.OrderFilter) ([]*database.OrderDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*database.OrderDetail
	for _, o := range m.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.PlanID != "" && o.PlanID != filter.PlanID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		list = append(list, &database.OrderDetail{InvestmentOrder: *o})
	}
	return list, nil
}

func (m *mockStore) activateLocked(orderID string) (*database.InvestmentOrder, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if o.Status != database.OrderAwaitingApproval {
		return nil, database.ErrInvalidTransition
	}
	p, ok := m.plans[o.PlanID]
	if !ok {
		return nil, database.ErrNotFound
	}
	start := time.Now().UTC()
	maturity := start.AddDate(0, 0, p.MaturityPeriodDays)
	o.Status = database.OrderActive
	o.StartDate = &start
	o.MaturityDate = &maturity
	cp := *o
	return &cp, nil
}

func (m *mockStore) ActivateOrder(ctx context.Context, orderID string) (*database.InvestmentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(orderID)
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
		if o.FinalAmount != nil {
			return nil, database.ErrInvalidTransition
		}
		r := *rate
		amount := o.Amount * (1 + r/100)
		o.FinalInterestRate = &r
		o.FinalAmount = &amount
	}
	o.Status = database.OrderMatured
	cp := *o
	return &cp, nil
}

func (m *mockStore) BackfillMaturedOrderRate(ctx context.Context, orderID string, rate float64) (*database.InvestmentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if o.Status != database.OrderMatured || o.FinalAmount != nil {
		return nil, database.ErrInvalidTransition
	}
	amount := o.Amount * (1 + rate/100)
	o.FinalInterestRate = &rate
	o.FinalAmount = &amount
	cp := *o
	return &cp, nil
}

func (m *mockStore) CompleteMaturedOrder(ctx context.Context, orderID, adminID, reference string) (*database.InvestmentOrder, *database.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil, database.ErrNotFound
	}
	if o.Status != database.OrderMatured {
		return nil, nil, database.ErrInvalidTransition
	}
	if o.FinalAmount == nil {
		return nil, nil, database.ErrFinalRateNotSet
	}

	u, ok := m.users[o.UserID]
	if !ok {
		return nil, nil, database.ErrNotFound
	}

	payout := *o.FinalAmount
	u.AccountBalance += payout
	u.TotalEarnings += payout - o.Amount
	o.Status = database.OrderCompleted

	now := time.Now()
	t := &database.Transaction{
		ID:             m.id("tx"),
		UserID:         o.UserID,
		Type:           database.TransactionMaturity,
		Amount:         payout,
		Status:         database.TransactionCompleted,
		Reference:      reference,
		RelatedOrderID: &o.ID,
		ProcessedBy:    &adminID,
		ProcessedAt:    &now,
	}
	m.transactions[t.ID] = t

	cp := *o
	tcp := *t
	return &cp, &tcp, nil
}

func (m *mockStore) ListOrdersForFinalization(ctx context.Context, planID string) ([]*database.InvestmentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*database.InvestmentOrder
	for _, o := range m.orders {
		if o.PlanID != planID {
			continue
		}
		if o.Status == database.OrderActive || (o.Status == database.OrderMatured && o.FinalAmount == nil) {
			cp := *o
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (m *mockStore) CreateReceiptForOrder(ctx context.Context, rc *database.PaymentReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[rc.OrderID]
	if !ok {
		return database.ErrNotFound
	}
	if o.Status != database.OrderPendingPayment {
		return database.ErrInvalidTransition
	}
	rc.ID = m.id("receipt")
	rc.Status = database.ReceiptPending
	rc.CreatedAt = time.Now()
	cp := *rc
	m.receipts[rc.ID] = &cp
	o.Status = database.OrderAwaitingApproval
	return nil
}

func (m *mockStore) GetReceiptByID(ctx context.Context, receiptID string) (*database.PaymentReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.receipts[receiptID]
	if !ok {
		return nil, nil
	}
	cp := *rc
	return &cp, nil
}

func (m *mockStore) GetReceiptDetail(ctx context.Context, receiptID string) (*database.ReceiptDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.receipts[receiptID]
	if !ok {
		return nil, nil
	}
	d := &database.ReceiptDetail{PaymentReceipt: *rc}
	if o, ok := m.orders[rc.OrderID]; ok {
		d.OrderAmount = o.Amount
		if p, ok := m.plans[o.PlanID]; ok {
			d.PlanName = p.Name
		}
	}
	if u, ok := m.users[rc.UserID]; ok {
		d.UserEmail = u.Email
	}
	return d, nil
}

func (m *mockStore) ListReceipts(ctx context.Context, filter database.ReceiptFilter) ([]*database.ReceiptDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*database.ReceiptDetail
	for _, rc := range m.receipts {
		if filter.UserID != "" && rc.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && rc.Status != filter.Status {
			continue
		}
		list = append(list, &database.ReceiptDetail{PaymentReceipt: *rc})
	}
	return list, nil
}

func (m *mockStore) ReviewReceipt(ctx context.Context, receiptID, adminID string, approve bool, reviewNotes string) (*database.PaymentReceipt, *database.InvestmentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.receipts[receiptID]
	if !ok {
		return nil, nil, database.ErrNotFound
	}
	if rc.Status != database.ReceiptPending {
		return nil, nil, database.ErrReceiptAlreadyReviewed
	}

	now := time.Now()
	if approve {
		rc.Status = database.ReceiptApproved
	} else {
		rc.Status = database.ReceiptRejected
	}
	rc.ReviewedBy = &adminID
	rc.ReviewNotes = &reviewNotes
	rc.ReviewedAt = &now

	var order *database.InvestmentOrder
	if approve {
		activated, err := m.activateLocked(rc.OrderID)
		if err != nil {
			return nil, nil, err
		}
		order = activated
	} else {
		o, ok := m.orders[rc.OrderID]
		if !ok {
			return nil, nil, database.ErrNotFound
		}
		if o.Status != database.OrderAwaitingApproval {
			return nil, nil, database.ErrInvalidTransition
		}
		o.Status = database.OrderPendingPayment
		cp := *o
		order = &cp
	}

	rcp := *rc
	return &rcp, order, nil
}

func (m *mockStore) GetUserByID(ctx context.Context, userID string) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func newTestService(store *mockStore) *Service {
	return NewService(store, nil, nil, nil)
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("manual payment waits for a receipt", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addPlan("p1", 500, 90, 5, 10, true)
		svc := newTestService(store)

		before := time.Now().UTC()
		order, err := svc.CreateOrder(ctx, "u1", CreateOrderRequest{
			PlanID: "p1", Amount: 1000, PaymentMethod: "manual",
		})
		if err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
		if order.Status != database.OrderPendingPayment {
			t.Errorf("expected pending_payment, got %s", order.Status)
		}
		deadline := before.Add(PaymentDeadlineWindow)
		if order.PaymentDeadline.Before(deadline.Add(-time.Minute)) || order.PaymentDeadline.After(deadline.Add(time.Minute)) {
			t.Errorf("deadline not ~48h out: %v", order.PaymentDeadline)
		}
		if order.StartDate != nil || order.MaturityDate != nil {
			t.Error("term dates must not be set before activation")
		}
	})

	t.Run("balance payment debits immediately", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 1500)
		store.addPlan("p1", 500, 90, 5, 10, true)
		svc := newTestService(store)

		order, err := svc.CreateOrder(ctx, "u1", CreateOrderRequest{
			PlanID: "p1", Amount: 1000, PaymentMethod: "account_balance",
		})
		if err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
		if order.Status != database.OrderAwaitingApproval {
			t.Errorf("expected awaiting_approval, got %s", order.Status)
		}
		if got := store.users["u1"].AccountBalance; got != 500 {
			t.Errorf("balance: got %.2f, want 500", got)
		}

		var debit *database.Transaction
		for _, tx := range store.transactions {
			debit = tx
		}
		if debit == nil {
			t.Fatal("expected a debit transaction")
		}
		if debit.Type != database.TransactionReinvestment || debit.Amount != -1000 {
			t.Errorf("debit: type %s amount %.2f", debit.Type, debit.Amount)
		}
		if debit.RelatedOrderID == nil || *debit.RelatedOrderID != order.ID {
			t.Error("debit not linked to order")
		}
	})

	t.Run("insufficient balance persists nothing", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 200)
		store.addPlan("p1", 100, 90, 5, 10, true)
		svc := newTestService(store)

		_, err := svc.CreateOrder(ctx, "u1", CreateOrderRequest{
			PlanID: "p1", Amount: 1000, PaymentMethod: "account_balance",
		})
		if !errors.Is(err, database.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
		if got := store.users["u1"].AccountBalance; got != 200 {
			t.Errorf("balance changed: got %.2f", got)
		}
		if len(store.orders) != 0 {
			t.Error("order persisted despite failed debit")
		}
	})

	t.Run("inactive plan refused", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addPlan("p1", 100, 90, 5, 10, false)
		svc := newTestService(store)

		_, err := svc.CreateOrder(ctx, "u1", CreateOrderRequest{PlanID: "p1", Amount: 500, PaymentMethod: "manual"})
		if !errors.Is(err, ErrPlanInactive) {
			t.Errorf("expected ErrPlanInactive, got %v", err)
		}
	})

	t.Run("amount below plan minimum refused", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addPlan("p1", 500, 90, 5, 10, true)
		svc := newTestService(store)

		_, err := svc.CreateOrder(ctx, "u1", CreateOrderRequest{PlanID: "p1", Amount: 499.99, PaymentMethod: "manual"})
		if !errors.Is(err, ErrAmountBelowMinimum) {
			t.Errorf("expected ErrAmountBelowMinimum, got %v", err)
		}
	})
}

func TestReceiptFlow(t *testing.T) {
	ctx := context.Background()

	setup := func() (*mockStore, *Service, *database.InvestmentOrder) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addUser("u2", 0)
		store.addPlan("p1", 100, 90, 5, 10, true)
		svc := newTestService(store)
		order, err := svc.CreateOrder(ctx, "u1", CreateOrderRequest{
			PlanID: "p1", Amount: 1000, PaymentMethod: "manual",
		})
		if err != nil {
			t.Fatalf("setup CreateOrder failed: %v", err)
		}
		return store, svc, order
	}

	t.Run("upload moves order to awaiting approval", func(t *testing.T) {
		store, svc, order := setup()

		receipt, err := svc.UploadReceipt(ctx, "u1", UploadReceiptRequest{
			OrderID: order.ID, ReceiptImage: "data:image/png;base64,abc",
		})
		if err != nil {
			t.Fatalf("UploadReceipt failed: %v", err)
		}
		if receipt.Status != database.ReceiptPending {
			t.Errorf("expected pending receipt, got %s", receipt.Status)
		}
		if store.orders[order.ID].Status != database.OrderAwaitingApproval {
			t.Errorf("order status: %s", store.orders[order.ID].Status)
		}
	})

	t.Run("stranger cannot upload", func(t *testing.T) {
		_, svc, order := setup()
		_, err := svc.UploadReceipt(ctx, "u2", UploadReceiptRequest{OrderID: order.ID, ReceiptImage: "x"})
		if !errors.Is(err, ErrNotOwner) {
			t.Errorf("expected ErrNotOwner, got %v", err)
		}
	})

	t.Run("expired deadline refused", func(t *testing.T) {
		store, svc, order := setup()
		store.mu.Lock()
		store.orders[order.ID].PaymentDeadline = time.Now().UTC().Add(-time.Hour)
		store.mu.Unlock()

		_, err := svc.UploadReceipt(ctx, "u1", UploadReceiptRequest{OrderID: order.ID, ReceiptImage: "x"})
		if !errors.Is(err, ErrDeadlineExpired) {
			t.Errorf("expected ErrDeadlineExpired, got %v", err)
		}
	})

	t.Run("approval activates order and stamps term", func(t *testing.T) {
		_, svc, order := setup()
		receipt, _ := svc.UploadReceipt(ctx, "u1", UploadReceiptRequest{OrderID: order.ID, ReceiptImage: "x"})

		_, activated, err := svc.ReviewReceipt(ctx, receipt.ID, "admin1", ReviewReceiptRequest{Approve: true})
		if err != nil {
			t.Fatalf("ReviewReceipt failed: %v", err)
		}
		if activated.Status != database.OrderActive {
			t.Errorf("expected active, got %s", activated.Status)
		}
		if activated.StartDate == nil || activated.MaturityDate == nil {
			t.Fatal("term dates not stamped")
		}
		wantMaturity := activated.StartDate.AddDate(0, 0, 90)
		if !activated.MaturityDate.Equal(wantMaturity) {
			t.Errorf("maturity date: got %v, want %v", activated.MaturityDate, wantMaturity)
		}
	})

	t.Run("rejection returns order to pending payment", func(t *testing.T) {
		_, svc, order := setup()
		receipt, _ := svc.UploadReceipt(ctx, "u1", UploadReceiptRequest{OrderID: order.ID, ReceiptImage: "x"})

		reviewed, reverted, err := svc.ReviewReceipt(ctx, receipt.ID, "admin1", ReviewReceiptRequest{
			Approve: false, Notes: "image unreadable",
		})
		if err != nil {
			t.Fatalf("ReviewReceipt failed: %v", err)
		}
		if reviewed.Status != database.ReceiptRejected {
			t.Errorf("expected rejected receipt, got %s", reviewed.Status)
		}
		if reverted.Status != database.OrderPendingPayment {
			t.Errorf("expected pending_payment, got %s", reverted.Status)
		}

		// The user can try again with a new receipt
		if _, err := svc.UploadReceipt(ctx, "u1", UploadReceiptRequest{OrderID: order.ID, ReceiptImage: "y"}); err != nil {
			t.Errorf("re-upload after rejection failed: %v", err)
		}
	})

	t.Run("a receipt is decided exactly once", func(t *testing.T) {
		_, svc, order := setup()
		receipt, _ := svc.UploadReceipt(ctx, "u1", UploadReceiptRequest{OrderID: order.ID, ReceiptImage: "x"})

		if _, _, err := svc.ReviewReceipt(ctx, receipt.ID, "admin1", ReviewReceiptRequest{Approve: true}); err != nil {
			t.Fatalf("first review failed: %v", err)
		}
		if _, _, err := svc.ReviewReceipt(ctx, receipt.ID, "admin2", ReviewReceiptRequest{Approve: false}); !errors.Is(err, database.ErrReceiptAlreadyReviewed) {
			t.Errorf("expected ErrReceiptAlreadyReviewed, got %v", err)
		}
	})
}

func TestFinalizePlan(t *testing.T) {
	ctx := context.Background()

	activeOrder := func(store *mockStore, id, planID string, amount float64) {
		store.mu.Lock()
		defer store.mu.Unlock()
		start := time.Now().UTC().AddDate(0, 0, -90)
		maturity := time.Now().UTC().Add(-time.Hour)
		store.orders[id] = &database.InvestmentOrder{
			ID: id, UserID: "u1", PlanID: planID, Amount: amount,
			PaymentMethod: database.PaymentManual, Status: database.OrderActive,
			StartDate: &start, MaturityDate: &maturity,
		}
	}

	t.Run("prices active orders with the final rate", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addPlan("p1", 100, 90, 5, 10, true)
		activeOrder(store, "o1", "p1", 1000)
		svc := newTestService(store)

		result, err := svc.FinalizePlan(ctx, "p1", "admin1", 8)
		if err != nil {
			t.Fatalf("FinalizePlan failed: %v", err)
		}
		if result.OrdersPriced != 1 || result.OrdersFailed != 0 {
			t.Errorf("result: priced %d failed %d", result.OrdersPriced, result.OrdersFailed)
		}

		o := store.orders["o1"]
		if o.Status != database.OrderMatured {
			t.Errorf("expected matured, got %s", o.Status)
		}
		if o.FinalAmount == nil || *o.FinalAmount != 1080 {
			t.Errorf("final amount: got %v, want 1080", o.FinalAmount)
		}
		if o.FinalInterestRate == nil || *o.FinalInterestRate != 8 {
			t.Errorf("final rate: got %v, want 8", o.FinalInterestRate)
		}
	})

	t.Run("rate outside advertised range refused", func(t *testing.T) {
		store := newMockStore()
		store.addPlan("p1", 100, 90, 5, 10, true)
		svc := newTestService(store)

		if _, err := svc.FinalizePlan(ctx, "p1", "admin1", 12); !errors.Is(err, ErrRateOutOfRange) {
			t.Errorf("expected ErrRateOutOfRange for 12%%, got %v", err)
		}
		if _, err := svc.FinalizePlan(ctx, "p1", "admin1", 4.9); !errors.Is(err, ErrRateOutOfRange) {
			t.Errorf("expected ErrRateOutOfRange for 4.9%%, got %v", err)
		}

		// Boundary rates are allowed
		if _, err := svc.FinalizePlan(ctx, "p1", "admin1", 5); err != nil {
			t.Errorf("boundary rate refused: %v", err)
		}
	})

	t.Run("finalization is one shot", func(t *testing.T) {
		store := newMockStore()
		store.addPlan("p1", 100, 90, 5, 10, true)
		svc := newTestService(store)

		if _, err := svc.FinalizePlan(ctx, "p1", "admin1", 7); err != nil {
			t.Fatalf("first finalization failed: %v", err)
		}
		if _, err := svc.FinalizePlan(ctx, "p1", "admin1", 9); !errors.Is(err, database.ErrPlanAlreadyFinalized) {
			t.Errorf("expected ErrPlanAlreadyFinalized, got %v", err)
		}
	})

	t.Run("backfills orders the sweep matured unpriced", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addPlan("p1", 100, 90, 5, 10, true)
		store.mu.Lock()
		store.orders["o1"] = &database.InvestmentOrder{
			ID: "o1", UserID: "u1", PlanID: "p1", Amount: 2000,
			PaymentMethod: database.PaymentManual, Status: database.OrderMatured,
		}
		store.mu.Unlock()
		svc := newTestService(store)

		result, err := svc.FinalizePlan(ctx, "p1", "admin1", 6)
		if err != nil {
			t.Fatalf("FinalizePlan failed: %v", err)
		}
		if result.OrdersPriced != 1 {
			t.Errorf("priced: got %d, want 1", result.OrdersPriced)
		}
		o := store.orders["o1"]
		if o.FinalAmount == nil || *o.FinalAmount != 2120 {
			t.Errorf("final amount: got %v, want 2120", o.FinalAmount)
		}
	})
}

func TestCompleteOrder(t *testing.T) {
	ctx := context.Background()

	maturedOrder := func(store *mockStore, id string, amount float64, rate *float64) {
		store.mu.Lock()
		defer store.mu.Unlock()
		o := &database.InvestmentOrder{
			ID: id, UserID: "u1", PlanID: "p1", Amount: amount,
			PaymentMethod: database.PaymentManual, Status: database.OrderMatured,
		}
		if rate != nil {
			final := amount * (1 + *rate/100)
			o.FinalInterestRate = rate
			o.FinalAmount = &final
		}
		store.orders[id] = o
	}

	t.Run("pays out final amount and books profit", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 50)
		store.addPlan("p1", 100, 90, 5, 10, true)
		rate := 8.0
		maturedOrder(store, "o1", 1000, &rate)
		svc := newTestService(store)

		order, payout, err := svc.CompleteOrder(ctx, "o1", "admin1")
		if err != nil {
			t.Fatalf("CompleteOrder failed: %v", err)
		}
		if order.Status != database.OrderCompleted {
			t.Errorf("expected completed, got %s", order.Status)
		}
		if payout.Amount != 1080 {
			t.Errorf("payout: got %.2f, want 1080", payout.Amount)
		}
		if payout.Type != database.TransactionMaturity {
			t.Errorf("payout type: %s", payout.Type)
		}
		if got := store.users["u1"].AccountBalance; got != 1130 {
			t.Errorf("balance: got %.2f, want 1130", got)
		}
		if got := store.users["u1"].TotalEarnings; got != 80 {
			t.Errorf("earnings: got %.2f, want 80", got)
		}
	})

	t.Run("unpriced order cannot complete", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		maturedOrder(store, "o1", 1000, nil)
		svc := newTestService(store)

		if _, _, err := svc.CompleteOrder(ctx, "o1", "admin1"); !errors.Is(err, database.ErrFinalRateNotSet) {
			t.Errorf("expected ErrFinalRateNotSet, got %v", err)
		}
	})

	t.Run("completion is exactly once", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		rate := 8.0
		maturedOrder(store, "o1", 1000, &rate)
		svc := newTestService(store)

		if _, _, err := svc.CompleteOrder(ctx, "o1", "admin1"); err != nil {
			t.Fatalf("first completion failed: %v", err)
		}
		if _, _, err := svc.CompleteOrder(ctx, "o1", "admin1"); !errors.Is(err, database.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if got := store.users["u1"].AccountBalance; got != 1080 {
			t.Errorf("payout applied more than once: %.2f", got)
		}
	})

	t.Run("active order cannot complete", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addPlan("p1", 100, 90, 5, 10, true)
		store.mu.Lock()
		store.orders["o1"] = &database.InvestmentOrder{
			ID: "o1", UserID: "u1", PlanID: "p1", Amount: 1000,
			Status: database.OrderActive,
		}
		store.mu.Unlock()
		svc := newTestService(store)

		if _, _, err := svc.CompleteOrder(ctx, "o1", "admin1"); !errors.Is(err, database.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestPlanManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("create validates rate range", func(t *testing.T) {
		svc := newTestService(newMockStore())
		_, err := svc.CreatePlan(ctx, CreatePlanRequest{
			Name: "Bad", MinInvestmentAmount: 100, MaturityPeriodDays: 30,
			MinInterestRate: 10, MaxInterestRate: 5,
		})
		if !errors.Is(err, ErrInvalidRateRange) {
			t.Errorf("expected ErrInvalidRateRange, got %v", err)
		}
	})

	t.Run("update preserves the final rate", func(t *testing.T) {
		store := newMockStore()
		store.addPlan("p1", 100, 90, 5, 10, true)
		svc := newTestService(store)

		if _, err := svc.FinalizePlan(ctx, "p1", "admin1", 7); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}

		name := "Renamed"
		if _, err := svc.UpdatePlan(ctx, "p1", UpdatePlanRequest{Name: &name}); err != nil {
			t.Fatalf("UpdatePlan failed: %v", err)
		}

		plan := store.plans["p1"]
		if plan.FinalInterestRate == nil || *plan.FinalInterestRate != 7 {
			t.Errorf("final rate lost on update: %v", plan.FinalInterestRate)
		}
	})

	t.Run("delete refused while orders reference the plan", func(t *testing.T) {
		store := newMockStore()
		store.addUser("u1", 0)
		store.addPlan("p1", 100, 90, 5, 10, true)
		store.mu.Lock()
		store.orders["o1"] = &database.InvestmentOrder{
			ID: "o1", UserID: "u1", PlanID: "p1", Amount: 500,
			Status: database.OrderCompleted,
		}
		store.mu.Unlock()
		svc := newTestService(store)

		if err := svc.DeletePlan(ctx, "p1"); !errors.Is(err, database.ErrPlanHasOpenOrders) {
			t.Errorf("expected ErrPlanHasOpenOrders, got %v", err)
		}
	})
}
