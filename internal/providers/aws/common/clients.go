package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/budgets"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/costguard/costguard/internal/store"
)

// ---------------------------------------------------------------------------
// Per-service client interfaces
//
// Each interface covers only the operations used by this project. Using narrow
// interfaces instead of the full SDK clients makes mocking in unit tests
// trivial: create a struct that satisfies the interface and return canned data.
// ---------------------------------------------------------------------------

// STSClient is the subset of STS operations used by the loader.
type STSClient interface {
	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// CostExplorerClient covers the Cost Explorer operations used during cost
// collection.
type CostExplorerClient interface {
	GetCostAndUsage(
		ctx context.Context,
		params *ce.GetCostAndUsageInput,
		optFns ...func(*ce.Options),
	) (*ce.GetCostAndUsageOutput, error)
}

// BudgetsClient covers the AWS Budgets operations used to resolve the
// monthly budget limit.
type BudgetsClient interface {
	DescribeBudgets(
		ctx context.Context,
		params *budgets.DescribeBudgetsInput,
		optFns ...func(*budgets.Options),
	) (*budgets.DescribeBudgetsOutput, error)
}

// SecretsClient covers the Secrets Manager operations used to resolve
// webhook URLs and API keys at startup.
type SecretsClient interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// S3Client covers the S3 operations used to load the operator context
// document.
type S3Client interface {
	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// ---------------------------------------------------------------------------
// ClientSet and ClientFactory
// ---------------------------------------------------------------------------

// ClientSet holds fully initialised AWS service clients for a given profile.
// All fields are interfaces so they can be replaced with mocks in tests
// without importing the AWS SDK in test files.
type ClientSet struct {
	STS          STSClient
	CostExplorer CostExplorerClient
	Budgets      BudgetsClient
	DynamoDB     store.DynamoDBAPI
	Secrets      SecretsClient
	S3           S3Client
}

// ClientFactory creates a ClientSet from an aws.Config.
// Swap this in tests to inject mock clients.
type ClientFactory func(cfg aws.Config) *ClientSet

// NewClientSet is the production ClientFactory. It constructs real AWS SDK
// clients from cfg. Cost Explorer and Budgets are global services only
// reachable through us-east-1, so their clients are pinned there.
func NewClientSet(cfg aws.Config) *ClientSet {
	globalCfg := cfg
	globalCfg.Region = "us-east-1"

	return &ClientSet{
		STS:          sts.NewFromConfig(cfg),
		CostExplorer: ce.NewFromConfig(globalCfg),
		Budgets:      budgets.NewFromConfig(globalCfg),
		DynamoDB:     dynamodb.NewFromConfig(cfg),
		Secrets:      secretsmanager.NewFromConfig(cfg),
		S3:           s3.NewFromConfig(cfg),
	}
}
