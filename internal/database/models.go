package database

import (
	"time"
)

// UserRole represents a user's role on the platform
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User represents a platform user with their financial summary.
// AccountBalance is the authoritative balance; the total_* columns are
// informational running sums and are never used to derive the balance.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"` // Never serialize
	Name           string    `json:"name,omitempty"`
	Role           UserRole  `json:"role"`
	AccountBalance float64   `json:"account_balance"`
	TotalDeposited float64   `json:"total_deposited"`
	TotalWithdrawn float64   `json:"total_withdrawn"`
	TotalEarnings  float64   `json:"total_earnings"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// TransactionType classifies a balance-affecting event
type TransactionType string

const (
	TransactionDeposit      TransactionType = "deposit"
	TransactionWithdrawal   TransactionType = "withdrawal"
	TransactionInvestment   TransactionType = "investment"
	TransactionMaturity     TransactionType = "maturity"
	TransactionAdjustment   TransactionType = "adjustment"
	TransactionReinvestment TransactionType = "reinvestment"
)

// TransactionStatus represents a transaction's lifecycle state.
// Everything other than pending is terminal.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionRejected  TransactionStatus = "rejected"
	TransactionCancelled TransactionStatus = "cancelled"
)

// Transaction is the immutable-once-settled record of a balance-affecting
// event. Amount and type never change after the status leaves pending.
type Transaction struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Type            TransactionType   `json:"type"`
	Amount          float64           `json:"amount"`
	Status          TransactionStatus `json:"status"`
	Reference       string            `json:"reference"`
	Description     string            `json:"description,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	RelatedOrderID  *string           `json:"related_order_id,omitempty"`
	ProcessedBy     *string           `json:"processed_by,omitempty"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// TransactionDetail is the read-side view of a transaction joined with
// its owning user
type TransactionDetail struct {
	Transaction
	UserEmail string `json:"user_email"`
	UserName  string `json:"user_name,omitempty"`
}

// InvestmentPlan is a product template users subscribe to
type InvestmentPlan struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	MinInvestmentAmount float64   `json:"min_investment_amount"`
	MaturityPeriodDays  int       `json:"maturity_period_days"`
	MinInterestRate     float64   `json:"min_interest_rate"`
	MaxInterestRate     float64   `json:"max_interest_rate"`
	FinalInterestRate   *float64  `json:"final_interest_rate,omitempty"`
	IsActive            bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PaymentMethod is how an order is funded
type PaymentMethod string

const (
	PaymentManual         PaymentMethod = "manual"
	PaymentAccountBalance PaymentMethod = "account_balance"
)

// OrderStatus represents an investment order's lifecycle state
type OrderStatus string

const (
	OrderPendingPayment   OrderStatus = "pending_payment"
	OrderAwaitingApproval OrderStatus = "awaiting_approval"
	OrderActive           OrderStatus = "active"
	OrderMatured          OrderStatus = "matured"
	OrderCompleted        OrderStatus = "completed"
)

// InvestmentOrder is one user's subscription instance against a plan.
// StartDate and MaturityDate are set exactly once at activation;
// FinalAmount is computed exactly once at maturation.
type InvestmentOrder struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	PlanID            string        `json:"plan_id"`
	Amount            float64       `json:"amount"`
	PaymentMethod     PaymentMethod `json:"payment_method"`
	Status            OrderStatus   `json:"status"`
	PaymentDeadline   time.Time     `json:"payment_deadline"`
	StartDate         *time.Time    `json:"start_date,omitempty"`
	MaturityDate      *time.Time    `json:"maturity_date,omitempty"`
	FinalInterestRate *float64      `json:"final_interest_rate,omitempty"`
	FinalAmount       *float64      `json:"final_amount,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// OrderDetail is the read-side view of an order joined with its plan
// and owning user
type OrderDetail struct {
	InvestmentOrder
	PlanName           string  `json:"plan_name"`
	PlanFinalRate      *float64 `json:"plan_final_rate,omitempty"`
	MaturityPeriodDays int     `json:"maturity_period_days"`
	UserEmail          string  `json:"user_email"`
	UserName           string  `json:"user_name,omitempty"`
}

// ReceiptStatus represents a payment receipt's review state
type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptApproved ReceiptStatus = "approved"
	ReceiptRejected ReceiptStatus = "rejected"
)

// PaymentReceipt is proof of manual payment for one order. It is
// reviewed exactly once.
type PaymentReceipt struct {
	ID           string        `json:"id"`
	OrderID      string        `json:"order_id"`
	UserID       string        `json:"user_id"`
	ReceiptImage string        `json:"receipt_image"`
	Notes        string        `json:"notes,omitempty"`
	Status       ReceiptStatus `json:"status"`
	ReviewedBy   *string       `json:"reviewed_by,omitempty"`
	ReviewNotes  *string       `json:"review_notes,omitempty"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ReceiptDetail is the read-side view of a receipt joined with its
// order and plan name
type ReceiptDetail struct {
	PaymentReceipt
	OrderAmount float64 `json:"order_amount"`
	PlanName    string  `json:"plan_name"`
	UserEmail   string  `json:"user_email"`
}

// TransactionFilter narrows transaction listings
type TransactionFilter struct {
	UserID string
	Status TransactionStatus
	Type   TransactionType
	Limit  int
	Offset int
}

// OrderFilter narrows order listings
type OrderFilter struct {
	UserID string
	PlanID string
	Status OrderStatus
	Limit  int
	Offset int
}

// ReceiptFilter narrows receipt listings
type ReceiptFilter struct {
	UserID string
	Status ReceiptStatus
	Limit  int
	Offset int
}
