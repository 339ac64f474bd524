package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/hashicorp/vault/api"
)

// ErrSecretNotFound is returned when the configured secret does not exist in the store
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore returns a bundle of credentials keyed by environment variable name
type SecretStore interface {
	Secrets(ctx context.Context) (map[string]string, error)
}

// VaultSecretStore reads a KV secret from HashiCorp Vault. Both KV v1 and v2 layouts are accepted.
type VaultSecretStore struct {
	client *api.Client
	path   string
}

func NewVaultSecretStore(cfg *Config) (*VaultSecretStore, error) {
	client, err := api.NewClient(&api.Config{
		Address: cfg.Secrets.Vault.Address,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Secrets.Vault.Token != "" {
		client.SetToken(cfg.Secrets.Vault.Token)
	}

	return &VaultSecretStore{client: client, path: cfg.Secrets.Vault.Path}, nil
}

func (v *VaultSecretStore) Secrets(ctx context.Context) (map[string]string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w at Vault path %s", ErrSecretNotFound, v.path)
	}

	data := secret.Data
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	values := make(map[string]string, len(data))
	for key, raw := range data {
		value, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("Vault secret value for key %s is not a string", key)
		}
		values[key] = value
	}
	return values, nil
}

// AWSSecretStore reads a JSON object secret from AWS Secrets Manager
type AWSSecretStore struct {
	client   *secretsmanager.SecretsManager
	secretID string
}

func NewAWSSecretStore(cfg *Config) (*AWSSecretStore, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Secrets.AWS.Region)}
	if cfg.Secrets.AWS.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Secrets.AWS.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &AWSSecretStore{
		client:   secretsmanager.New(sess),
		secretID: cfg.Secrets.AWS.SecretID,
	}, nil
}

func (a *AWSSecretStore) Secrets(ctx context.Context) (map[string]string, error) {
	result, err := a.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(a.secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret from AWS: %w", err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("%w: %s has no string value", ErrSecretNotFound, a.secretID)
	}

	var values map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &values); err != nil {
		return nil, fmt.Errorf("failed to parse AWS secret JSON: %w", err)
	}
	return values, nil
}

// NewSecretStore creates the store selected by SECRETS_PROVIDER.
// It returns nil for the env provider, where Load already resolved everything.
func NewSecretStore(cfg *Config) (SecretStore, error) {
	switch cfg.Secrets.Provider {
	case "", "env":
		return nil, nil
	case "vault":
		return NewVaultSecretStore(cfg)
	case "aws":
		return NewAWSSecretStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", cfg.Secrets.Provider)
	}
}

// LoadSecrets overlays credentials from the configured store onto cfg.
// Keys absent from the store keep their environment value.
func LoadSecrets(ctx context.Context, cfg *Config) error {
	store, err := NewSecretStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}
	if store == nil {
		return nil
	}

	values, err := store.Secrets(ctx)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	ApplySecrets(cfg, values)
	return nil
}

// ApplySecrets copies the recognized credentials in values onto cfg. Empty values are ignored.
func ApplySecrets(cfg *Config, values map[string]string) {
	set := func(key string, dst *string) {
		if v := values[key]; v != "" {
			*dst = v
		}
	}
	setOptional := func(key string, dst **string) {
		if v := values[key]; v != "" {
			*dst = &v
		}
	}

	set("SECRET_KEY", &cfg.SecretKey)
	set("JWT_SECRET_KEY", &cfg.JWTSecretKey)
	set("JWT_REFRESH_SECRET", &cfg.JWTRefreshSecretKey)
	setOptional("SENDER_EMAIL", &cfg.SenderEmail)
	setOptional("SENDGRID_API_KEY", &cfg.SendGridAPIKey)
	setOptional("GOOGLE_CLIENT_ID", &cfg.GoogleClientID)
	setOptional("GOOGLE_CLIENT_SECRET", &cfg.GoogleClientSecret)
	setOptional("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	setOptional("GEMINI_API_KEY", &cfg.GeminiAPIKey)
}
