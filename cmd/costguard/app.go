package main

import (
	"context"
	"fmt"

	"github.com/costguard/costguard/internal/changelog"
	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/engine"
	"github.com/costguard/costguard/internal/feedback"
	"github.com/costguard/costguard/internal/guardianctx"
	"github.com/costguard/costguard/internal/llm"
	"github.com/costguard/costguard/internal/notify"
	awsbudgets "github.com/costguard/costguard/internal/providers/aws/budgets"
	"github.com/costguard/costguard/internal/providers/aws/common"
	awscost "github.com/costguard/costguard/internal/providers/aws/cost"
	"github.com/costguard/costguard/internal/report"
	"github.com/costguard/costguard/internal/store"
)

// signingSecretKey is the Secrets Manager key holding the Slack app signing
// secret for callback verification. Absent means verification is disabled.
const signingSecretKey = "slack_signing_secret"

// app holds the wired application graph shared by the commands. Everything
// hangs off one resolved AWS profile and one configuration.
type app struct {
	cfg     *config.Config
	profile *common.ProfileConfig

	store    store.Store
	source   awscost.Source
	budgets  *awsbudgets.Collector
	resolver *notify.SecretResolver
	notifier notify.Notifier
	tracker  *changelog.Tracker
	recorder *feedback.Recorder
	reports  *report.Builder
}

// newApp loads configuration and credentials and wires the application.
// profileFlag overrides the configured AWS profile when non-empty.
func newApp(ctx context.Context, configPath, profileFlag string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	profileName := cfg.AWS.Profile
	if profileFlag != "" {
		profileName = profileFlag
	}

	provider := common.NewDefaultAWSClientProvider()
	profile, err := provider.LoadProfile(ctx, profileName, cfg.AWS.Region, cfg.AWS.AccountID)
	if err != nil {
		return nil, err
	}

	st := store.NewDynamoDB(profile.Clients.DynamoDB, cfg.Storage.TableName)
	resolver := notify.NewSecretResolver(profile.Clients.Secrets, cfg.AWS.SecretName)
	tracker := changelog.New(st, &cfg.Detection)

	return &app{
		cfg:      cfg,
		profile:  profile,
		store:    st,
		source:   awscost.NewExplorer(profile.Clients.CostExplorer),
		budgets:  awsbudgets.NewCollector(profile.Clients.Budgets),
		resolver: resolver,
		notifier: notify.NewSlack(resolver, cfg.Slack),
		tracker:  tracker,
		recorder: feedback.NewRecorder(st, tracker, cfg),
		reports:  report.NewBuilder(st),
	}, nil
}

// newEngine assembles the detection engine, including the optional language
// assistant. dryRun drops the notifier so nothing is posted.
func (a *app) newEngine(ctx context.Context, dryRun bool) (*engine.Engine, error) {
	assistant, err := a.buildAssistant(ctx)
	if err != nil {
		return nil, err
	}

	notifier := a.notifier
	if dryRun {
		notifier = nil
	}

	return engine.New(engine.Options{
		Config:    a.cfg,
		Store:     a.store,
		Source:    a.source,
		Budgets:   a.budgets,
		Notifier:  notifier,
		Assistant: assistant,
		AccountID: a.profile.AccountID,
	}), nil
}

// buildAssistant constructs the configured language assistant, loading its
// API key and the operator context document. Provider "none" yields the
// no-op client.
func (a *app) buildAssistant(ctx context.Context) (llm.LLMClient, error) {
	if a.cfg.LLM.Provider == "none" {
		return llm.New(a.cfg.LLM, "", "")
	}

	apiKey, err := a.resolver.Get(ctx, a.cfg.LLM.APIKeySecretKey)
	if err != nil {
		return nil, fmt.Errorf("load %s API key: %w", a.cfg.LLM.Provider, err)
	}

	operatorContext, err := guardianctx.Load(ctx, a.profile.Clients.S3, a.cfg.AWS.ContextBucket, a.cfg.AWS.ContextKey)
	if err != nil {
		return nil, err
	}
	return llm.New(a.cfg.LLM, apiKey, operatorContext)
}

// slackSigningSecret fetches the callback signing secret. A missing key
// disables verification rather than failing startup.
func (a *app) slackSigningSecret(ctx context.Context) string {
	secret, err := a.resolver.Get(ctx, signingSecretKey)
	if err != nil {
		return ""
	}
	return secret
}
