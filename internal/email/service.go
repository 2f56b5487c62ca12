package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"investment-backoffice/internal/logging"
)

// Config holds SMTP configuration
type Config struct {
	Enabled  bool
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// CredentialSource supplies SMTP credentials at send time. The Vault
// client implements this; a nil source means credentials come from the
// static configuration.
type CredentialSource interface {
	SMTPCredentials(ctx context.Context) (username, password string, err error)
}

// Service handles email sending operations. All notification sends are
// best effort: callers fire them after their database work has
// committed and only log failures.
type Service struct {
	config Config
	creds  CredentialSource
	logger *logging.Logger
}

// NewService creates a new email service
func NewService(cfg Config, creds CredentialSource) *Service {
	return &Service{
		config: cfg,
		creds:  creds,
		logger: logging.WithComponent("email"),
	}
}

// IsConfigured checks whether the service can send mail
func (s *Service) IsConfigured() bool {
	return s.config.Enabled && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) resolveCredentials(ctx context.Context) (string, string) {
	if s.creds != nil {
		username, password, err := s.creds.SMTPCredentials(ctx)
		if err == nil && username != "" {
			return username, password
		}
		if err != nil {
			s.logger.Warn("falling back to configured SMTP credentials", "error", err)
		}
	}
	return s.config.Username, s.config.Password
}

// SendEmail sends a single email to one recipient
func (s *Service) SendEmail(ctx context.Context, to, subject, body string) error {
	if !s.IsConfigured() {
		s.logger.Debug("email disabled, dropping message", "to", to, "subject", subject)
		return nil
	}

	username, password := s.resolveCredentials(ctx)

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	message := []byte(
		"From: " + from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body + "\r\n",
	)

	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, s.config.Host)
	}

	addr := s.config.Host + ":" + s.config.Port

	var err error
	// Port 465 is implicit TLS, everything else goes through
	// smtp.SendMail which upgrades via STARTTLS when offered
	if s.config.Port == "465" {
		err = s.sendEmailTLS(addr, auth, s.config.From, []string{to}, message)
	} else {
		err = smtp.SendMail(addr, auth, s.config.From, []string{to}, message)
	}

	if err != nil {
		s.logger.Error("failed to send email", "to", to, "error", err)
		return fmt.Errorf("SMTP error: %w", err)
	}

	s.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

// SendToMany sends the same email to each recipient, logging and
// skipping individual failures
func (s *Service) SendToMany(ctx context.Context, recipients []string, subject, body string) {
	for _, to := range recipients {
		if err := s.SendEmail(ctx, to, subject, body); err != nil {
			s.logger.Warn("skipping failed recipient", "to", to, "error", err)
		}
	}
}

// sendEmailTLS sends email over an implicit TLS connection (port 465)
func (s *Service) sendEmailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host := strings.Split(addr, ":")[0]
	tlsConfig := &tls.Config{
		ServerName: host,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}

	_, err = w.Write(msg)
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
