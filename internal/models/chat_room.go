package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRoom is the chat session for one ride. A ride has at most one room and
// a closed room never reopens.
type ChatRoom struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RideID       string             `json:"rideId" bson:"ride_id"`
	DriverID     string             `json:"driverId" bson:"driver_id"`
	PassengerIDs []string           `json:"passengerIds" bson:"passenger_ids"`
	MessageCount int64              `json:"messageCount" bson:"message_count"`
	IsClosed     bool               `json:"isClosed" bson:"is_closed"`
	CreatedAt    time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updated_at"`
	ClosedAt     *time.Time         `json:"closedAt,omitempty" bson:"closed_at,omitempty"`
}

// IsMember reports whether userID is the driver or one of the passengers.
func (r *ChatRoom) IsMember(userID string) bool {
	if userID == "" {
		return false
	}
	if r.DriverID == userID {
		return true
	}
	return r.HasPassenger(userID)
}

func (r *ChatRoom) HasPassenger(userID string) bool {
	for _, id := range r.PassengerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// RoomGroup is the transport group name that fans out events for a ride.
func RoomGroup(rideID string) string {
	return "room:" + rideID
}
