package email

import (
	"context"
	"fmt"
	"time"
)

// wrapBody renders the shared notification layout around a content block
func wrapBody(title, content string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #1E3A8A; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9fafb; padding: 30px; border-radius: 0 0 5px 5px; }
        .amount { font-size: 24px; font-weight: bold; color: #1E3A8A; }
        .footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
        </div>
        <div class="content">
%s
        </div>
        <div class="footer">
            <p>This is an automated message from the investment back office.</p>
        </div>
    </div>
</body>
</html>
`, title, content)
}

// SendPendingRequestEmail notifies staff that a new transaction request
// is waiting for review
func (s *Service) SendPendingRequestEmail(ctx context.Context, recipients []string, userName, txType string, amount float64) {
	subject := fmt.Sprintf("New %s request pending review", txType)
	content := fmt.Sprintf(`
            <p>%s has submitted a new <strong>%s</strong> request.</p>
            <p class="amount">$%.2f</p>
            <p>Please review it in the admin dashboard.</p>`, userName, txType, amount)
	s.SendToMany(ctx, recipients, subject, wrapBody("Pending Request", content))
}

// SendTransactionDecidedEmail tells a user the outcome of their
// transaction request
func (s *Service) SendTransactionDecidedEmail(ctx context.Context, to, txType string, amount float64, approved bool, reason string) {
	var subject, content string
	if approved {
		subject = fmt.Sprintf("Your %s request was approved", txType)
		content = fmt.Sprintf(`
            <p>Your <strong>%s</strong> request has been approved and applied to your account.</p>
            <p class="amount">$%.2f</p>`, txType, amount)
	} else {
		subject = fmt.Sprintf("Your %s request was rejected", txType)
		content = fmt.Sprintf(`
            <p>Your <strong>%s</strong> request of <strong>$%.2f</strong> was rejected.</p>
            <p>Reason: %s</p>
            <p>Your account balance has not been changed.</p>`, txType, amount, reason)
	}

	if err := s.SendEmail(ctx, to, subject, wrapBody("Request Update", content)); err != nil {
		s.logger.Warn("failed to send transaction decision email", "to", to, "error", err)
	}
}

// SendBalanceAdjustedEmail tells a user an administrator changed their
// balance directly
func (s *Service) SendBalanceAdjustedEmail(ctx context.Context, to string, amount float64, description string) {
	subject := "Your account balance was adjusted"
	direction := "credited to"
	if amount < 0 {
		direction = "debited from"
		amount = -amount
	}
	content := fmt.Sprintf(`
            <p>An adjustment of <span class="amount">$%.2f</span> was %s your account.</p>
            <p>%s</p>`, amount, direction, description)

	if err := s.SendEmail(ctx, to, subject, wrapBody("Balance Adjustment", content)); err != nil {
		s.logger.Warn("failed to send adjustment email", "to", to, "error", err)
	}
}

// SendReceiptReviewedEmail tells a user the outcome of their payment
// receipt review
func (s *Service) SendReceiptReviewedEmail(ctx context.Context, to string, approved bool, notes string) {
	var subject, content string
	if approved {
		subject = "Your payment was confirmed"
		content = `
            <p>Your payment receipt has been verified and your investment is now <strong>active</strong>.</p>
            <p>You can follow its progress from your dashboard.</p>`
	} else {
		subject = "Your payment receipt was rejected"
		content = fmt.Sprintf(`
            <p>Your payment receipt could not be verified.</p>
            <p>Notes from the reviewer: %s</p>
            <p>Please upload a new receipt before the payment deadline.</p>`, notes)
	}

	if err := s.SendEmail(ctx, to, subject, wrapBody("Payment Review", content)); err != nil {
		s.logger.Warn("failed to send receipt review email", "to", to, "error", err)
	}
}

// SendOrderMaturedEmail tells a user their investment reached maturity
func (s *Service) SendOrderMaturedEmail(ctx context.Context, to, planName string, amount float64, maturityDate time.Time) {
	subject := "Your investment has matured"
	content := fmt.Sprintf(`
            <p>Your investment of <span class="amount">$%.2f</span> in <strong>%s</strong> matured on %s.</p>
            <p>The payout will be credited to your account once processing completes.</p>`,
		amount, planName, maturityDate.Format("January 2, 2006"))

	if err := s.SendEmail(ctx, to, subject, wrapBody("Investment Matured", content)); err != nil {
		s.logger.Warn("failed to send maturity email", "to", to, "error", err)
	}
}

// SendOrderMaturedAdminEmail notifies staff that an order matured. For
// unpriced orders it prompts them to finalize the plan's rate so the
// payout can be computed.
func (s *Service) SendOrderMaturedAdminEmail(ctx context.Context, recipients []string, planName string, amount float64, priced bool) {
	subject := fmt.Sprintf("Investment matured in %s", planName)
	var action string
	if priced {
		action = `<p>The payout is priced and ready for completion in the admin dashboard.</p>`
	} else {
		action = fmt.Sprintf(`<p>The plan <strong>%s</strong> has no final interest rate yet.
            Please finalize the plan so the payout can be computed.</p>`, planName)
	}
	content := fmt.Sprintf(`
            <p>An investment of <span class="amount">$%.2f</span> in <strong>%s</strong> has reached maturity.</p>
%s`, amount, planName, action)
	s.SendToMany(ctx, recipients, subject, wrapBody("Investment Matured", content))
}

// SendOrderCompletedEmail tells a user their matured investment was
// paid out
func (s *Service) SendOrderCompletedEmail(ctx context.Context, to, planName string, payout float64) {
	subject := "Your investment payout is complete"
	content := fmt.Sprintf(`
            <p>Your investment in <strong>%s</strong> has been paid out.</p>
            <p class="amount">$%.2f</p>
            <p>The full amount is now available in your account balance.</p>`, planName, payout)

	if err := s.SendEmail(ctx, to, subject, wrapBody("Payout Complete", content)); err != nil {
		s.logger.Warn("failed to send payout email", "to", to, "error", err)
	}
}
