package llm

import (
	"context"
	"fmt"

	"github.com/costguard/costguard/internal/config"
)

// Disabled is the LLMClient used when no provider is configured.
type Disabled struct{}

func (Disabled) AnalyzeAnomaly(context.Context, AnalysisRequest) (*AnalysisResponse, error) {
	return nil, fmt.Errorf("llm: no provider configured")
}

func (Disabled) IsAvailable(context.Context) bool { return false }

// New returns the LLMClient for the configured provider. Provider "none"
// (or empty) yields a Disabled client; alerting proceeds without narrative.
func New(cfg config.LLMConfig, apiKey, operatorContext string) (LLMClient, error) {
	switch cfg.Provider {
	case "", "none":
		return Disabled{}, nil
	case "anthropic":
		return NewAnthropic(apiKey, cfg, operatorContext), nil
	case "openai":
		return NewOpenAI(apiKey, cfg, operatorContext), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

var _ LLMClient = Disabled{}
