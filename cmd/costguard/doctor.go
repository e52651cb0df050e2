package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/costguard/costguard/internal/config"
	"github.com/costguard/costguard/internal/models"
	"github.com/costguard/costguard/internal/notify"
	"github.com/costguard/costguard/internal/providers/aws/common"
	"github.com/costguard/costguard/internal/store"
)

// DoctorResult is the structured output of costguard doctor. It can be
// serialised to JSON via --format=json or rendered as a human-readable table
// (default).
type DoctorResult struct {
	Config struct {
		Path  string `json:"path,omitempty"`
		Valid bool   `json:"valid"`
		Error string `json:"error,omitempty"`
	} `json:"config"`

	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Storage struct {
		Table     string `json:"table,omitempty"`
		Reachable bool   `json:"reachable"`
		Error     string `json:"error,omitempty"`
	} `json:"storage"`

	Secrets struct {
		SecretName string `json:"secret_name,omitempty"`
		Readable   bool   `json:"readable"`
		Error      string `json:"error,omitempty"`
	} `json:"secrets"`

	OverallHealthy bool `json:"overall_healthy"`
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			cfgPath, _ := cmd.Flags().GetString("config")
			profile, _ := cmd.Flags().GetString("profile")
			result, err := runDoctor(
				cmd.Context(),
				common.NewDefaultAWSClientProvider(),
				cmd.OutOrStdout(),
				cfgPath,
				profile,
				format,
			)
			if err != nil {
				// Rendering failure — let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main's stderr path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result. The returned error covers only
// rendering failures; callers must inspect result.OverallHealthy.
func runDoctor(ctx context.Context, provider common.AWSClientProvider, w io.Writer, cfgPath, profile, format string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, provider, cfgPath, profile)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a
// DoctorResult. It performs no rendering.
func collectDoctorResult(ctx context.Context, provider common.AWSClientProvider, cfgPath, profileFlag string) DoctorResult {
	var result DoctorResult

	// Config: load → defaults → validation.
	result.Config.Path = cfgPath
	cfg, err := config.Load(cfgPath)
	if err != nil {
		result.Config.Error = err.Error()
		return result
	}
	result.Config.Valid = true

	profileName := cfg.AWS.Profile
	if profileFlag != "" {
		profileName = profileFlag
	}
	if profileName != "" {
		result.AWS.Profile = profileName
	}

	// AWS: credentials → STS account ID.
	profile, err := provider.LoadProfile(ctx, profileName, cfg.AWS.Region, cfg.AWS.AccountID)
	if err != nil {
		result.AWS.Error = err.Error()
		return result
	}
	result.AWS.Credentials = true
	result.AWS.AccountID = profile.AccountID

	// Storage: a point lookup that should come back ErrNotFound on a healthy
	// table. Any other error means the table is misconfigured or unreachable.
	result.Storage.Table = cfg.Storage.TableName
	st := store.NewDynamoDB(profile.Clients.DynamoDB, cfg.Storage.TableName)
	_, err = st.GetSnapshot(ctx, "1970-01-01", models.PeriodDaily, profile.AccountID)
	if err == nil || errors.Is(err, store.ErrNotFound) {
		result.Storage.Reachable = true
	} else {
		result.Storage.Error = err.Error()
	}

	// Secrets: the critical-channel webhook must resolve.
	result.Secrets.SecretName = cfg.AWS.SecretName
	resolver := notify.NewSecretResolver(profile.Clients.Secrets, cfg.AWS.SecretName)
	if _, err := resolver.Get(ctx, cfg.Slack.Critical.WebhookSecretKey); err != nil {
		result.Secrets.Error = err.Error()
	} else {
		result.Secrets.Readable = true
	}

	result.OverallHealthy = result.Config.Valid &&
		result.AWS.Credentials &&
		result.Storage.Reachable &&
		result.Secrets.Readable

	return result
}

// renderDoctorTable writes the human-readable diagnostic output to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	fmt.Fprintln(w, "\nConfig:")
	if result.Config.Valid {
		doctorPrint(w, "Configuration", "OK", "")
	} else {
		doctorPrint(w, "Configuration", "FAIL", result.Config.Error)
	}

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
	}

	fmt.Fprintln(w, "\nStorage:")
	if result.Storage.Reachable {
		doctorPrint(w, "DynamoDB table", "OK", result.Storage.Table)
	} else {
		doctorPrint(w, "DynamoDB table", "FAIL", result.Storage.Error)
	}

	fmt.Fprintln(w, "\nSecrets:")
	if result.Secrets.Readable {
		doctorPrint(w, "Webhook secret", "OK", result.Secrets.SecretName)
	} else {
		doctorPrint(w, "Webhook secret", "FAIL", result.Secrets.Error)
	}
}

// doctorPrint writes a single diagnostic check line to w. When detail is
// non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
