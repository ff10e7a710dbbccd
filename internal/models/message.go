package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageStatus string

const (
	MessageStatusActive  MessageStatus = "active"
	MessageStatusFlagged MessageStatus = "flagged"
	MessageStatusRemoved MessageStatus = "removed"
)

type Message struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RideID            string             `json:"rideId" bson:"ride_id"`
	SenderID          string             `json:"senderId" bson:"sender_id"`
	Content           string             `json:"content" bson:"content"`
	Status            MessageStatus      `json:"status" bson:"status"`
	IsFlagged         bool               `json:"isFlagged" bson:"is_flagged"`
	FlagReason        string             `json:"flagReason,omitempty" bson:"flag_reason,omitempty"`
	ModerationDetails *ModerationDetails `json:"moderationDetails,omitempty" bson:"moderation_details,omitempty"`
	Timestamp         time.Time          `json:"timestamp" bson:"timestamp"`
	CreatedAt         time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updated_at"`
}

type ModerationDetails struct {
	Categories      map[string]bool    `json:"categories" bson:"categories"`
	CategoryScores  map[string]float64 `json:"categoryScores" bson:"category_scores"`
	FlaggedAt       time.Time          `json:"flaggedAt" bson:"flagged_at"`
	ModerationModel string             `json:"moderationModel" bson:"moderation_model"`
}
