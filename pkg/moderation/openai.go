package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ridechat/internal/config"
	"ridechat/internal/models"
	"ridechat/pkg/logger"
)

type OpenAIClassifier struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
	logger     *logger.Logger
	warnOnce   sync.Once
}

func NewOpenAIClassifier(cfg *config.ModerationConfig, log *logger.Logger) *OpenAIClassifier {
	if log == nil {
		log = logger.NewDiscard()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpenAIClassifier{
		apiKey:     cfg.APIKey,
		apiURL:     cfg.APIURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.WithField("component", "moderation_classifier"),
	}
}

type moderationRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type moderationResponse struct {
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) *models.ModerationResult {
	if c.apiKey == "" {
		c.warnOnce.Do(func() {
			c.logger.Warn("Moderation API key not configured, messages will not be classified")
		})
		return SafeResult(c.model)
	}

	result, err := c.classify(ctx, text)
	if err != nil {
		c.logger.WithError(err).Error("Moderation request failed, treating message as safe")
		return SafeResult(c.model)
	}
	return result
}

func (c *OpenAIClassifier) classify(ctx context.Context, text string) (*models.ModerationResult, error) {
	payload, err := json.Marshal(moderationRequest{Input: text, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("moderation API returned %d: %s", resp.StatusCode, string(body))
	}

	var modResp moderationResponse
	if err := json.Unmarshal(body, &modResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(modResp.Results) == 0 {
		return nil, fmt.Errorf("moderation API returned no results")
	}

	first := modResp.Results[0]
	model := modResp.Model
	if model == "" {
		model = c.model
	}

	result := &models.ModerationResult{
		IsFlagged:      first.Flagged,
		Categories:     first.Categories,
		CategoryScores: first.CategoryScores,
		Model:          model,
	}
	if result.Categories == nil {
		result.Categories = map[string]bool{}
	}
	if result.CategoryScores == nil {
		result.CategoryScores = map[string]float64{}
	}
	if first.Flagged {
		result.FlagReason = FlagReason(first.Categories)
	}

	c.logger.WithField("flagged", first.Flagged).Debug("Moderation result received")

	return result, nil
}
