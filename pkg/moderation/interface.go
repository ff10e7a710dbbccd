package moderation

import (
	"context"

	"ridechat/internal/models"
)

// Classifier labels text with harm categories. Implementations fail open:
// any upstream problem yields an unflagged result, never an error.
type Classifier interface {
	Classify(ctx context.Context, text string) *models.ModerationResult
}

// Categories is the fixed set of harm categories, in reporting order.
var Categories = []string{
	"sexual",
	"hate",
	"harassment",
	"self-harm",
	"sexual/minors",
	"hate/threatening",
	"violence/graphic",
	"violence",
}

var categoryNames = map[string]string{
	"sexual":           "sexual content",
	"hate":             "hate speech",
	"harassment":       "harassment",
	"self-harm":        "self-harm content",
	"sexual/minors":    "sexual content involving minors",
	"hate/threatening": "hate speech and threats",
	"violence/graphic": "graphic violence",
	"violence":         "violent content",
}

// SafeResult is the all-false result returned when classification is skipped
// or fails.
func SafeResult(model string) *models.ModerationResult {
	categories := make(map[string]bool, len(Categories))
	scores := make(map[string]float64, len(Categories))
	for _, c := range Categories {
		categories[c] = false
		scores[c] = 0
	}
	return &models.ModerationResult{
		IsFlagged:      false,
		Categories:     categories,
		CategoryScores: scores,
		Model:          model,
	}
}
