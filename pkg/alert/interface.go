package alert

import (
	"context"
	"time"
)

const (
	TypeMessageFlagged   = "message_flagged"
	TypeModerationFailed = "moderation_failed"
)

// Alert is an operator notification about a moderation outcome.
type Alert struct {
	Type      string            `json:"type"`
	Subject   string            `json:"subject"`
	Message   string            `json:"message"`
	RideID    string            `json:"rideId,omitempty"`
	MessageID string            `json:"messageId,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, alert *Alert) error
}

// NopNotifier drops every alert. Used when no topic is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *Alert) error { return nil }
