// Package vault wraps the HashiCorp Vault client used to hold the
// SMTP credentials out of the process environment.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"investment-backoffice/config"
)

// SMTPCredentialData represents the SMTP credentials stored in Vault
type SMTPCredentialData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client wraps the HashiCorp Vault client. With Vault disabled the
// client degrades to an in-memory store so development setups work
// without a Vault server.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *SMTPCredentialData
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// StoreSMTPCredentials writes the SMTP credentials to Vault
func (c *Client) StoreSMTPCredentials(ctx context.Context, data SMTPCredentialData) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cached = &data
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"username": data.Username,
			"password": data.Password,
		},
	}

	_, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), secretData)
	if err != nil {
		return fmt.Errorf("failed to store SMTP credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = &data
	c.mu.Unlock()

	return nil
}

// SMTPCredentials retrieves the SMTP credentials, serving from cache
// after the first read. Implements the email service's credential
// source.
func (c *Client) SMTPCredentials(ctx context.Context) (string, string, error) {
	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached.Username, c.cached.Password, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return "", "", fmt.Errorf("SMTP credentials not found and vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return "", "", fmt.Errorf("failed to read SMTP credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", "", fmt.Errorf("SMTP credentials not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", "", fmt.Errorf("invalid secret format")
	}

	creds := &SMTPCredentialData{
		Username: getString(data, "username"),
		Password: getString(data, "password"),
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	return creds.Username, creds.Password, nil
}

// ClearCache clears the in-memory credential cache, forcing the next
// read to hit Vault
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the KV v2 data path for the SMTP secret
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
