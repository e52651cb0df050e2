package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/costguard/costguard/internal/providers/aws/common"
)

type fakeDynamo struct{ err error }

func (f *fakeDynamo) PutItem(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	// Empty item: the store maps this to its not-found error, which doctor
	// treats as a healthy table.
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, f.err
}

func (f *fakeDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, f.err
}

type fakeSecrets struct {
	value string
	err   error
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

type fakeProvider struct {
	profile *common.ProfileConfig
	err     error
}

func (f *fakeProvider) LoadProfile(_ context.Context, _, _, _ string) (*common.ProfileConfig, error) {
	return f.profile, f.err
}

func writeDoctorConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "environment: dev\naws:\n  secret_name: costguard-secrets\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func healthyProvider() *fakeProvider {
	return &fakeProvider{
		profile: &common.ProfileConfig{
			ProfileName: "default",
			AccountID:   "123456789012",
			Region:      "us-east-1",
			Clients: &common.ClientSet{
				DynamoDB: &fakeDynamo{},
				Secrets:  &fakeSecrets{value: `{"webhook_url_critical":"https://hooks.slack.example/x"}`},
			},
		},
	}
}

func TestDoctor_Healthy(t *testing.T) {
	var out bytes.Buffer
	result, err := runDoctor(context.Background(), healthyProvider(), &out, writeDoctorConfig(t), "", "table")
	if err != nil {
		t.Fatal(err)
	}
	if !result.OverallHealthy {
		t.Errorf("result = %+v; want healthy", result)
	}
	if !strings.Contains(out.String(), "Account: 123456789012") {
		t.Errorf("table output missing account line:\n%s", out.String())
	}
}

func TestDoctor_JSONFormat(t *testing.T) {
	var out bytes.Buffer
	if _, err := runDoctor(context.Background(), healthyProvider(), &out, writeDoctorConfig(t), "", "json"); err != nil {
		t.Fatal(err)
	}
	var decoded DoctorResult
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if !decoded.OverallHealthy || decoded.AWS.AccountID != "123456789012" {
		t.Errorf("decoded = %+v; want healthy with account id", decoded)
	}
}

func TestDoctor_CredentialFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("no credentials")}
	var out bytes.Buffer
	result, err := runDoctor(context.Background(), provider, &out, writeDoctorConfig(t), "", "table")
	if err != nil {
		t.Fatal(err)
	}
	if result.OverallHealthy {
		t.Error("expected unhealthy result when credentials fail")
	}
	if !result.Config.Valid {
		t.Error("config check should still pass")
	}
	if result.AWS.Credentials {
		t.Error("credentials should be marked failed")
	}
}

func TestDoctor_StorageFailure(t *testing.T) {
	provider := healthyProvider()
	provider.profile.Clients.DynamoDB = &fakeDynamo{err: errors.New("table not found")}

	var out bytes.Buffer
	result, err := runDoctor(context.Background(), provider, &out, writeDoctorConfig(t), "", "table")
	if err != nil {
		t.Fatal(err)
	}
	if result.OverallHealthy || result.Storage.Reachable {
		t.Errorf("result = %+v; want storage marked unreachable", result)
	}
	// The rest of the checks still run.
	if !result.Secrets.Readable {
		t.Error("secrets check should still pass")
	}
}

func TestDoctor_SecretMissingKey(t *testing.T) {
	provider := healthyProvider()
	provider.profile.Clients.Secrets = &fakeSecrets{value: `{"unrelated":"x"}`}

	var out bytes.Buffer
	result, err := runDoctor(context.Background(), provider, &out, writeDoctorConfig(t), "", "table")
	if err != nil {
		t.Fatal(err)
	}
	if result.OverallHealthy || result.Secrets.Readable {
		t.Errorf("result = %+v; want secrets marked unreadable", result)
	}
}
