package config

// Config is the top-level application configuration.
// It is loaded from a YAML file (default ~/.config/costguard/config.yaml)
// and must never be committed with real secrets; webhook URLs and API keys
// live in AWS Secrets Manager and are referenced here by key name only.
type Config struct {
	// Environment selects the deployment stage: "dev", "staging", or "prod".
	// Affects default table naming and snapshot retention.
	Environment string `yaml:"environment" json:"environment"`

	AWS       AWSConfig       `yaml:"aws" json:"aws"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Budgets   BudgetConfig    `yaml:"budgets" json:"budgets"`
	Detection DetectionConfig `yaml:"anomaly_detection" json:"anomaly_detection"`
	Slack     SlackConfig     `yaml:"slack" json:"slack"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Reports   ReportConfig    `yaml:"reports" json:"reports"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// AWSConfig holds AWS defaults used when flags are not provided.
type AWSConfig struct {
	// Region is used for all regional clients. Cost Explorer itself is
	// global and always called through us-east-1.
	Region string `yaml:"region" json:"region"`

	// Profile is the shared-config profile name. Empty means the default
	// credential chain.
	Profile string `yaml:"profile" json:"profile"`

	// AccountID is auto-detected via STS when empty.
	AccountID string `yaml:"account_id" json:"account_id"`

	// SecretName is the Secrets Manager secret holding webhook URLs and
	// LLM API keys.
	SecretName string `yaml:"secret_name" json:"secret_name"`

	// ContextBucket/ContextKey locate the optional operator context
	// document handed to the language assistant. Empty disables it.
	ContextBucket string `yaml:"context_bucket" json:"context_bucket"`
	ContextKey    string `yaml:"context_key" json:"context_key"`
}

// StorageConfig configures the DynamoDB table and retention windows.
type StorageConfig struct {
	// TableName is the DynamoDB table. Defaults to "cost-guardian-<env>".
	TableName string `yaml:"table_name" json:"table_name"`

	Retention RetentionConfig `yaml:"retention" json:"retention"`
}

// RetentionConfig holds per-granularity retention windows in days.
// Fine-grained snapshots are kept briefly; daily history is kept long
// enough to serve the baseline window many times over.
type RetentionConfig struct {
	HourlyDays  int `yaml:"hourly_days" json:"hourly_days"`
	DailyDays   int `yaml:"daily_days" json:"daily_days"`
	MonthlyDays int `yaml:"monthly_days" json:"monthly_days"`
}

// BudgetConfig holds monthly budget thresholds.
type BudgetConfig struct {
	// MonthlyAmount is the configured monthly budget in USD. When AWS
	// Budgets returns a budget, that figure wins; this is the fallback.
	MonthlyAmount float64 `yaml:"monthly_amount" json:"monthly_amount"`

	// WarningThresholdPercent triggers a warning budget alert.
	WarningThresholdPercent float64 `yaml:"warning_threshold_percent" json:"warning_threshold_percent"`

	// CriticalThresholdPercent triggers a critical budget alert.
	CriticalThresholdPercent float64 `yaml:"critical_threshold_percent" json:"critical_threshold_percent"`
}

// DetectionConfig holds every anomaly-detection knob. Zero values are
// replaced with the documented defaults by ApplyDefaults.
type DetectionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// BaselineDays is the bounded history window for baselines.
	BaselineDays int `yaml:"baseline_days" json:"baseline_days"`

	// AbsoluteThreshold flags any service whose daily cost exceeds this
	// many dollars, regardless of history.
	AbsoluteThreshold float64 `yaml:"absolute_threshold" json:"absolute_threshold"`

	// PercentChangeThreshold flags deviation from the baseline mean of at
	// least this percentage.
	PercentChangeThreshold float64 `yaml:"percent_change_threshold" json:"percent_change_threshold"`

	// StdDevThreshold flags deviation of at least this many standard
	// deviations, only when the baseline has a positive std-dev.
	StdDevThreshold float64 `yaml:"std_dev_threshold" json:"std_dev_threshold"`

	// NewServiceMinimum is the cost floor for flagging a service with no
	// history.
	NewServiceMinimum float64 `yaml:"new_service_minimum" json:"new_service_minimum"`

	// MinimumCostForAnomaly drops anomalies whose absolute impact is below
	// this floor (new-service anomalies use NewServiceMinimum instead).
	MinimumCostForAnomaly float64 `yaml:"minimum_cost_for_anomaly" json:"minimum_cost_for_anomaly"`

	// ForecastBudgetThresholdPercent flags a projected end-of-month spend
	// above this percentage of the monthly budget.
	ForecastBudgetThresholdPercent float64 `yaml:"forecast_budget_threshold_percent" json:"forecast_budget_threshold_percent"`

	// SuppressionTolerancePoints is how many percentage points an anomaly
	// may exceed an acknowledged change before it surfaces again.
	SuppressionTolerancePoints float64 `yaml:"suppression_tolerance_points" json:"suppression_tolerance_points"`

	// ChangeGraceDays is how long past an expected end date an active
	// change survives before the scan expires it.
	ChangeGraceDays int `yaml:"change_grace_days" json:"change_grace_days"`

	AlertOnNewServices bool `yaml:"alert_on_new_services" json:"alert_on_new_services"`
	AlertOnServiceDrop bool `yaml:"alert_on_service_drop" json:"alert_on_service_drop"`
}

// SlackChannelConfig names one routed channel.
type SlackChannelConfig struct {
	Name string `yaml:"name" json:"name"`

	// WebhookSecretKey is the key inside the Secrets Manager secret that
	// holds this channel's webhook URL.
	WebhookSecretKey string `yaml:"webhook_secret_key" json:"webhook_secret_key"`
}

// SlackConfig configures alert delivery. Critical anomalies and critical
// budget alerts route to Critical; everything else to Heartbeat.
type SlackConfig struct {
	Enabled   bool               `yaml:"enabled" json:"enabled"`
	Critical  SlackChannelConfig `yaml:"critical" json:"critical"`
	Heartbeat SlackChannelConfig `yaml:"heartbeat" json:"heartbeat"`
}

// LLMConfig configures the optional narrative assistant.
type LLMConfig struct {
	// Provider selects the backend: "anthropic", "openai", or "none".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the provider-specific model identifier.
	Model string `yaml:"model" json:"model"`

	// APIKeySecretKey is the key inside the Secrets Manager secret holding
	// the provider API key.
	APIKeySecretKey string `yaml:"api_key_secret_key" json:"api_key_secret_key"`

	// MaxTokens caps response length.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
}

// ReportConfig configures scheduled summary reports.
type ReportConfig struct {
	// DailyCron / WeeklyCron are cron expressions for the serve command.
	DailyCron  string `yaml:"daily_cron" json:"daily_cron"`
	WeeklyCron string `yaml:"weekly_cron" json:"weekly_cron"`

	// CollectCron schedules the detection cycle in serve mode.
	CollectCron string `yaml:"collect_cron" json:"collect_cron"`
}

// ServerConfig configures the feedback callback listener.
type ServerConfig struct {
	// ListenAddr is the address the feedback server binds, e.g. ":8080".
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// Default returns a Config populated with every documented default.
func Default() *Config {
	cfg := &Config{
		Detection: DetectionConfig{
			Enabled:            true,
			AlertOnNewServices: true,
			AlertOnServiceDrop: true,
		},
		Slack: SlackConfig{Enabled: true},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
// Boolean feature switches are left as-is; Load seeds them before
// unmarshalling so an absent key means enabled and an explicit false sticks.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.Storage.TableName == "" {
		c.Storage.TableName = "cost-guardian-" + c.Environment
	}
	if c.Storage.Retention.HourlyDays == 0 {
		c.Storage.Retention.HourlyDays = 7
	}
	if c.Storage.Retention.DailyDays == 0 {
		c.Storage.Retention.DailyDays = 90
	}
	if c.Storage.Retention.MonthlyDays == 0 {
		c.Storage.Retention.MonthlyDays = 730
	}
	if c.Budgets.WarningThresholdPercent == 0 {
		c.Budgets.WarningThresholdPercent = 80
	}
	if c.Budgets.CriticalThresholdPercent == 0 {
		c.Budgets.CriticalThresholdPercent = 100
	}
	d := &c.Detection
	if d.BaselineDays == 0 {
		d.BaselineDays = 14
	}
	if d.AbsoluteThreshold == 0 {
		d.AbsoluteThreshold = 100
	}
	if d.PercentChangeThreshold == 0 {
		d.PercentChangeThreshold = 50
	}
	if d.StdDevThreshold == 0 {
		d.StdDevThreshold = 2.5
	}
	if d.NewServiceMinimum == 0 {
		d.NewServiceMinimum = 1
	}
	if d.MinimumCostForAnomaly == 0 {
		d.MinimumCostForAnomaly = 5
	}
	if d.ForecastBudgetThresholdPercent == 0 {
		d.ForecastBudgetThresholdPercent = 110
	}
	if d.SuppressionTolerancePoints == 0 {
		d.SuppressionTolerancePoints = 20
	}
	if d.ChangeGraceDays == 0 {
		d.ChangeGraceDays = 30
	}
	if c.Slack.Critical.Name == "" {
		c.Slack.Critical = SlackChannelConfig{
			Name:             "#aws-alerts-critical",
			WebhookSecretKey: "webhook_url_critical",
		}
	}
	if c.Slack.Heartbeat.Name == "" {
		c.Slack.Heartbeat = SlackChannelConfig{
			Name:             "#aws-alerts-general",
			WebhookSecretKey: "webhook_url_heartbeat",
		}
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "none"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.Reports.DailyCron == "" {
		c.Reports.DailyCron = "0 8 * * *"
	}
	if c.Reports.WeeklyCron == "" {
		c.Reports.WeeklyCron = "0 8 * * 1"
	}
	if c.Reports.CollectCron == "" {
		c.Reports.CollectCron = "0 0,6,12,18 * * *"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
}
