package interfaces

import (
	"context"

	"ridechat/internal/models"
)

type ChatRoomRepository interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	FindRoomByRide(ctx context.Context, rideID string) (*models.ChatRoom, error)
	UpdateRoom(ctx context.Context, rideID string, updates map[string]interface{}) error

	// Membership changes are applied atomically on the stored document and
	// fail with ErrClosed once the room is closed.
	AddPassenger(ctx context.Context, rideID, passengerID string) error
	RemovePassenger(ctx context.Context, rideID, passengerID string) error

	IncrementMessageCount(ctx context.Context, rideID string) error
}
