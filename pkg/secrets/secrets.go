// Package secrets reads runtime credentials from AWS Secrets Manager.
// The secret is a single JSON document holding webhook URLs and API keys
// so the whole deployment needs exactly one secret.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client we use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Source resolves named values from one JSON secret. The document is
// fetched once and cached for the lifetime of the process; Lambda
// invocations are short enough that rotation lag is not a concern.
type Source struct {
	api        SecretsManagerAPI
	secretName string

	mu     sync.Mutex
	values map[string]string
}

// New builds a Source from AWS SDK config.
func New(awsCfg aws.Config, secretName string) *Source {
	return NewWithAPI(secretsmanager.NewFromConfig(awsCfg), secretName)
}

// NewWithAPI builds a Source around an explicit API implementation.
func NewWithAPI(api SecretsManagerAPI, secretName string) *Source {
	return &Source{api: api, secretName: secretName}
}

// Static returns a Source preloaded with fixed values, bypassing Secrets
// Manager entirely. Used for local runs driven by environment variables.
func Static(values map[string]string) *Source {
	return &Source{values: values}
}

// Get returns the named value from the secret document. A missing key is
// an error distinct from a fetch failure so callers can decide whether a
// feature is simply unconfigured.
func (s *Source) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.values == nil {
		if err := s.loadLocked(ctx); err != nil {
			return "", err
		}
	}
	v, ok := s.values[key]
	if !ok || v == "" {
		return "", fmt.Errorf("secret %q has no value for %q", s.secretName, key)
	}
	return v, nil
}

// Lookup is Get without the missing-key error, for optional credentials.
func (s *Source) Lookup(ctx context.Context, key string) (string, bool) {
	v, err := s.Get(ctx, key)
	return v, err == nil
}

func (s *Source) loadLocked(ctx context.Context) error {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		return fmt.Errorf("get secret %q: %w", s.secretName, err)
	}
	raw := aws.ToString(out.SecretString)
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return fmt.Errorf("parse secret %q: %w", s.secretName, err)
	}
	s.values = values
	return nil
}
