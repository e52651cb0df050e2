package llm

import (
	"context"

	"github.com/costguard/costguard/internal/models"
)

// AnalysisRequest asks the assistant to explain one surfaced anomaly.
type AnalysisRequest struct {
	// Anomaly is the surfaced anomaly to explain.
	Anomaly *models.Anomaly

	// Snapshot provides the surrounding cost picture for the same day.
	Snapshot *models.CostSnapshot

	// RecentHistory is the anomaly service's recent daily costs, oldest
	// first, for trend context.
	RecentHistory []float64
}

// AnalysisResponse contains the generated narrative and usage metadata.
type AnalysisResponse struct {
	Analysis   string `json:"analysis"`
	TokensUsed int    `json:"tokens_used"`
}

// LLMClient is the interface for all AI-assisted operations.
// Implementations are optional; alerting functions correctly without one.
//
// The LLM must never:
//   - Execute shell commands
//   - Control program flow
//   - Make AWS SDK calls
//   - Influence detection or suppression decisions
//
// The LLM is only for narrative analysis attached to already-decided alerts.
type LLMClient interface {
	// AnalyzeAnomaly generates a short narrative explanation of the anomaly.
	AnalyzeAnomaly(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error)

	// IsAvailable returns true when the LLM backend is configured and usable.
	// Use this to gate LLM calls and provide graceful degradation.
	IsAvailable(ctx context.Context) bool
}
