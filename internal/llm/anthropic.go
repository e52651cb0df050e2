package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/costguard/costguard/internal/config"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
)

// Anthropic is an LLMClient backed by the Anthropic Messages API.
type Anthropic struct {
	httpClient      *http.Client
	apiKey          string
	model           string
	maxTokens       int
	operatorContext string
}

// NewAnthropic returns a client for the configured model. operatorContext is
// the optional account document appended to the system prompt.
func NewAnthropic(apiKey string, cfg config.LLMConfig, operatorContext string) *Anthropic {
	return &Anthropic{
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		apiKey:          apiKey,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		operatorContext: operatorContext,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Anthropic) AnalyzeAnomaly(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt(c.operatorContext),
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt(req)}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Anthropic API returned %d: %s", resp.StatusCode, detail)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, fmt.Errorf("Anthropic API returned no text content")
	}

	return &AnalysisResponse{
		Analysis:   text,
		TokensUsed: parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}, nil
}

func (c *Anthropic) IsAvailable(context.Context) bool {
	return c.apiKey != "" && c.model != ""
}

var _ LLMClient = (*Anthropic)(nil)
