package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// ProfileConfig is a resolved AWS profile with its SDK configuration and
// initialised service clients. It is the unit passed from the loader into
// every collector and the store.
type ProfileConfig struct {
	// ProfileName is the name from ~/.aws/credentials or "default".
	ProfileName string

	// AccountID is the resolved AWS account ID for this profile (via STS,
	// unless overridden in configuration).
	AccountID string

	// Region is the home region for this profile configuration.
	Region string

	// Config is the fully loaded AWS SDK v2 configuration.
	Config aws.Config

	// Clients holds initialised service clients for this profile.
	Clients *ClientSet
}

// AWSClientProvider loads AWS configurations and resolves the account
// identity. It is the sole entry point for AWS credential management across
// the entire provider layer.
//
// Implementations must use the AWS SDK v2 only. Never call the aws CLI.
type AWSClientProvider interface {
	// LoadProfile returns a ProfileConfig for the named profile in region.
	// Pass an empty profile to load the default credential chain; pass an
	// empty accountID to resolve it via STS.
	LoadProfile(ctx context.Context, profile, region, accountID string) (*ProfileConfig, error)
}
