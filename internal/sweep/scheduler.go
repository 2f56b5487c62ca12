// Package sweep provides the maturity sweep scheduler. It periodically
// moves active orders whose maturity date has elapsed into the matured
// state, pricing them when their plan's final rate is already known.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/events"
	"investment-backoffice/internal/logging"
)

// Store is the persistence surface the sweep needs. The database
// repository implements it; tests substitute an in-memory version.
type Store interface {
	ListMaturedDue(ctx context.Context, now time.Time) ([]*database.OrderDetail, error)
	MatureOrder(ctx context.Context, orderID string, rate *float64) (*database.InvestmentOrder, error)
	ListAdminEmails(ctx context.Context) ([]string, error)
}

// Mailer sends maturity notifications. Sends are best effort.
type Mailer interface {
	SendOrderMaturedEmail(ctx context.Context, to, planName string, amount float64, maturityDate time.Time)
	SendOrderMaturedAdminEmail(ctx context.Context, recipients []string, planName string, amount float64, priced bool)
}

// Config holds sweep scheduler configuration
type Config struct {
	// Interval is how often the sweep scans for due orders
	Interval time.Duration

	// RunTimeout is the maximum time allowed for a single sweep pass
	RunTimeout time.Duration
}

// DefaultConfig returns default sweep configuration
func DefaultConfig() Config {
	return Config{
		Interval:   24 * time.Hour,
		RunTimeout: 5 * time.Minute,
	}
}

// Result summarizes one sweep pass
type Result struct {
	Matured int `json:"matured"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Scheduler runs the maturity sweep on a fixed interval
type Scheduler struct {
	store  Store
	mailer Mailer
	bus    *events.EventBus
	config Config
	logger *logging.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a new sweep scheduler. mailer and bus may be
// nil.
func NewScheduler(store Store, mailer Mailer, bus *events.EventBus, config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultConfig().RunTimeout
	}

	return &Scheduler{
		store:    store,
		mailer:   mailer,
		bus:      bus,
		config:   config,
		logger:   logging.WithComponent("sweep"),
		stopChan: make(chan struct{}),
	}
}

// Start starts the sweep loop. The first pass runs immediately.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweep scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("starting sweep scheduler", "interval", s.config.Interval.String())

	s.wg.Add(1)
	go s.runLoop()

	return nil
}

// Stop stops the sweep loop and waits for an in-flight pass to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweep scheduler not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	s.logger.Info("sweep scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the configured scan interval
func (s *Scheduler) Interval() time.Duration {
	return s.config.Interval
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.runPass()

	for {
		select {
		case <-ticker.C:
			s.runPass()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scheduler) runPass() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep pass failed", "error", err)
		if s.bus != nil {
			s.bus.PublishError("sweep", "sweep pass failed", err)
		}
	}
}

// RunOnce performs a single sweep pass. Orders whose plan already has
// a final rate mature priced; the rest mature unpriced and are
// backfilled when the plan is finalized. An order that left the active
// state between the scan and the update is skipped, not an error, so
// concurrent sweeps and admin actions cannot double-process anything.
func (s *Scheduler) RunOnce(ctx context.Context) (*Result, error) {
	now := time.Now().UTC()

	due, err := s.store.ListMaturedDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due orders: %w", err)
	}

	result := &Result{}
	if len(due) == 0 {
		return result, nil
	}

	s.logger.Info("sweep found due orders", "count", len(due))

	var adminEmails []string
	if s.mailer != nil {
		adminEmails, err = s.store.ListAdminEmails(ctx)
		if err != nil {
			s.logger.Warn("failed to list admin recipients", "error", err)
		}
	}

	for _, detail := range due {
		order, err := s.store.MatureOrder(ctx, detail.ID, detail.PlanFinalRate)
		if err == database.ErrInvalidTransition {
			// Lost the race to an admin action or another sweep
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			s.logger.Error("failed to mature order", "order_id", detail.ID, "error", err)
			continue
		}

		result.Matured++
		s.logger.Info("order matured",
			"order_id", order.ID, "user_id", order.UserID, "priced", order.FinalAmount != nil)

		if s.bus != nil {
			s.bus.PublishOrderEvent(events.EventOrderMatured, order.ID, order.UserID, order.PlanID, string(order.Status))
		}
		if s.mailer != nil {
			if detail.MaturityDate != nil {
				go s.mailer.SendOrderMaturedEmail(context.Background(),
					detail.UserEmail, detail.PlanName, detail.Amount, *detail.MaturityDate)
			}
			// Staff drive what happens next: finalizing an unpriced
			// plan, then completing the payout
			if len(adminEmails) > 0 {
				go s.mailer.SendOrderMaturedAdminEmail(context.Background(),
					adminEmails, detail.PlanName, detail.Amount, order.FinalAmount != nil)
			}
		}
	}

	s.logger.Info("sweep pass finished",
		"matured", result.Matured, "skipped", result.Skipped, "failed", result.Failed)

	if s.bus != nil {
		s.bus.PublishSweepFinished(result.Matured, result.Skipped, result.Failed)
	}

	return result, nil
}
