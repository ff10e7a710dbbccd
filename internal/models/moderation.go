package models

// ModerationJob is the unit of asynchronous classification work for one sent
// message. Content is a snapshot taken at send time.
type ModerationJob struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
	SenderID  string `json:"senderId"`
	RideID    string `json:"rideId"`
}

// ModerationResult is the outcome of classifying one message.
type ModerationResult struct {
	IsFlagged      bool               `json:"isFlagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"categoryScores"`
	FlagReason     string             `json:"flagReason,omitempty"`
	Model          string             `json:"model,omitempty"`
}

// NormalizedText is the output of the obfuscation-defeating normalizer.
// Replacements maps every substituted source character to its replacement.
type NormalizedText struct {
	Original     string            `json:"original"`
	Normalized   string            `json:"normalized"`
	Replacements map[string]string `json:"replacements"`
}
