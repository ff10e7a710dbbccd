package interfaces

import (
	"context"

	"ridechat/internal/models"
)

type MessageRepository interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	FindMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateMessage(ctx context.Context, id string, updates map[string]interface{}) error

	// UpdateMessageIfStatus applies updates only when the stored status is one
	// of the given statuses. It reports whether a document was modified.
	UpdateMessageIfStatus(ctx context.Context, id string, statuses []models.MessageStatus, updates map[string]interface{}) (bool, error)

	CountMessages(ctx context.Context, rideID string) (int64, error)
	// ListMessages returns messages for a ride, newest first.
	ListMessages(ctx context.Context, rideID string, limit, skip int) ([]*models.Message, error)
}
