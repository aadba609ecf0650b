// Package security adapts the teacher's shared/security/vault.go secret-
// fetch pattern to the one secret this engine manages externally: webhook
// subscription signing keys. Every subscription keeps its secret in the
// database column, which is what internal/webhook signs with; when Vault
// is configured the webhook handler also mirrors the secret here. Vault is
// optional.
package security

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/sirupsen/logrus"
)

type VaultConfig struct {
	Address    string
	Token      string
	MountPath  string
	MaxRetries int
	Timeout    time.Duration
}

type VaultClient struct {
	client *api.Client
	config *VaultConfig
	logger *logrus.Logger
}

func NewVaultClient(config *VaultConfig, logger *logrus.Logger) (*VaultClient, error) {
	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.MaxRetries = config.MaxRetries
	vaultConfig.Timeout = config.Timeout

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(config.Token)

	return &VaultClient{client: client, config: config, logger: logger}, nil
}

// GetWebhookSecret reads the signing secret for a webhook subscription from
// Vault's KV v2 engine at <mount>/webhooks/<subscriptionID>.
func (v *VaultClient) GetWebhookSecret(ctx context.Context, subscriptionID string) (string, error) {
	fullPath := path.Join(v.config.MountPath, "webhooks", subscriptionID)

	v.logger.WithField("path", fullPath).Debug("retrieving webhook secret from vault")

	secret, err := v.client.Logical().ReadWithContext(ctx, fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found at path: %s", fullPath)
	}

	data, _ := secret.Data["data"].(map[string]interface{})
	if data == nil {
		data = secret.Data
	}

	value, ok := data["secret"].(string)
	if !ok {
		return "", fmt.Errorf("secret at %s has no string 'secret' field", fullPath)
	}
	return value, nil
}

// PutWebhookSecret stores (or rotates) a subscription's signing secret.
func (v *VaultClient) PutWebhookSecret(ctx context.Context, subscriptionID, secret string) error {
	fullPath := path.Join(v.config.MountPath, "webhooks", subscriptionID)

	v.logger.WithField("path", fullPath).Debug("storing webhook secret in vault")

	_, err := v.client.Logical().WriteWithContext(ctx, fullPath, map[string]interface{}{
		"data": map[string]interface{}{"secret": secret},
	})
	if err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}
	return nil
}
