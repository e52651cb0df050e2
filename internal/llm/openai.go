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

const openaiEndpoint = "https://api.openai.com/v1/chat/completions"

// OpenAI is an LLMClient backed by the OpenAI Chat Completions API.
type OpenAI struct {
	httpClient      *http.Client
	apiKey          string
	model           string
	maxTokens       int
	operatorContext string
}

// NewOpenAI returns a client for the configured model.
func NewOpenAI(apiKey string, cfg config.LLMConfig, operatorContext string) *OpenAI {
	return &OpenAI{
		httpClient:      &http.Client{Timeout: 60 * time.Second},
		apiKey:          apiKey,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		operatorContext: operatorContext,
	}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openaiMessage `json:"messages"`
}

type openaiResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *OpenAI) AnalyzeAnomaly(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	body, err := json.Marshal(openaiRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openaiMessage{
			{Role: "system", Content: systemPrompt(c.operatorContext)},
			{Role: "user", Content: userPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("OpenAI API returned %d: %s", resp.StatusCode, detail)
	}

	var parsed openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("OpenAI API returned no choices")
	}

	return &AnalysisResponse{
		Analysis:   parsed.Choices[0].Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

func (c *OpenAI) IsAvailable(context.Context) bool {
	return c.apiKey != "" && c.model != ""
}

var _ LLMClient = (*OpenAI)(nil)
