package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/costguard/costguard/internal/providers/aws/common"
)

// SecretResolver reads keys out of one JSON-valued Secrets Manager secret.
// The secret holds webhook URLs and API keys; it is fetched once and cached
// for the lifetime of the process.
type SecretResolver struct {
	client     common.SecretsClient
	secretName string

	mu     sync.Mutex
	values map[string]string
}

// NewSecretResolver returns a resolver for the named secret.
func NewSecretResolver(client common.SecretsClient, secretName string) *SecretResolver {
	return &SecretResolver{client: client, secretName: secretName}
}

// Get returns the value stored under key in the secret.
func (r *SecretResolver) Get(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.values == nil {
		out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(r.secretName),
		})
		if err != nil {
			return "", fmt.Errorf("get secret %q: %w", r.secretName, err)
		}
		if out.SecretString == nil {
			return "", fmt.Errorf("secret %q has no string value", r.secretName)
		}
		values := make(map[string]string)
		if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
			return "", fmt.Errorf("parse secret %q: %w", r.secretName, err)
		}
		r.values = values
	}

	v, ok := r.values[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, r.secretName)
	}
	return v, nil
}
