package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ridechat/internal/config"
	"ridechat/internal/metrics"
	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/pkg/logger"
	"ridechat/pkg/moderation"
)

type MessageService interface {
	SendMessage(ctx context.Context, request *SendMessageRequest) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) (*models.Message, error)

	// ApplyModerationResult flags the message when result is flagged. It
	// reports whether this call moved the message from active to flagged.
	ApplyModerationResult(ctx context.Context, messageID string, result *models.ModerationResult) (bool, error)

	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	ListMessages(ctx context.Context, rideID string, limit, skip int) ([]*models.Message, error)
	CountMessages(ctx context.Context, rideID string) (int64, error)
}

type SendMessageRequest struct {
	RideID       string `json:"rideId"`
	SenderID     string `json:"senderId"`
	Content      string `json:"content"`
	ConnectionID string `json:"-"`
}

type messageService struct {
	roomRepo    interfaces.ChatRoomRepository
	messageRepo interfaces.MessageRepository
	transport   Transport
	moderation  ModerationSubmitter
	config      *config.ChatConfig
	logger      *logger.Logger
}

func NewMessageService(
	cfg *config.ChatConfig,
	roomRepo interfaces.ChatRoomRepository,
	messageRepo interfaces.MessageRepository,
	transport Transport,
	moderation ModerationSubmitter,
	log *logger.Logger,
) MessageService {
	return &messageService{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		transport:   transport,
		moderation:  moderation,
		config:      cfg,
		logger:      log.WithField("service", "message"),
	}
}

func (s *messageService) SendMessage(ctx context.Context, request *SendMessageRequest) (*models.Message, error) {
	if request.RideID == "" || request.SenderID == "" || strings.TrimSpace(request.Content) == "" {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: missing required fields: rideId, senderId, content", ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(request.Content); n > s.config.MaxContentLength {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: content is %d characters, limit is %d", ErrInvalidInput, n, s.config.MaxContentLength)
	}

	room, err := s.roomRepo.FindRoomByRide(ctx, request.RideID)
	if err != nil {
		return nil, translateRepoError(err, "chat room for ride %s", request.RideID)
	}
	if room.IsClosed {
		return nil, fmt.Errorf("%w: ride %s", ErrRoomClosed, request.RideID)
	}
	if !room.IsMember(request.SenderID) {
		s.logger.LogSecurityEvent("unauthorized_message", "medium", map[string]interface{}{
			"ride_id": request.RideID,
			"user_id": request.SenderID,
		})
		return nil, fmt.Errorf("%w: user %s is not a member of ride %s", ErrUnauthorized, request.SenderID, request.RideID)
	}

	message := &models.Message{
		RideID:    request.RideID,
		SenderID:  request.SenderID,
		Content:   request.Content,
		Status:    models.MessageStatusActive,
		IsFlagged: false,
		Timestamp: time.Now(),
	}
	if err := s.messageRepo.CreateMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	if err := s.roomRepo.IncrementMessageCount(ctx, request.RideID); err != nil {
		s.logger.WithError(err).WithRideID(request.RideID).Warn("Failed to increment room message count")
	}

	messageID := message.ID.Hex()
	s.transport.Broadcast(models.RoomGroup(request.RideID), EventMessageReceived, message, "")
	if request.ConnectionID != "" {
		s.transport.SendTo(request.ConnectionID, EventMessageSent, map[string]interface{}{
			"messageId": messageID,
			"timestamp": message.Timestamp,
		})
	}

	s.moderation.Submit(&models.ModerationJob{
		MessageID: messageID,
		Content:   message.Content,
		SenderID:  message.SenderID,
		RideID:    message.RideID,
	})

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	s.logger.WithMessageID(messageID).WithRideID(request.RideID).WithUserID(request.SenderID).
		Debug("Message sent")

	return message, nil
}

func (s *messageService) DeleteMessage(ctx context.Context, messageID, requesterID string) (*models.Message, error) {
	if messageID == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: messageId and userId are required", ErrInvalidInput)
	}

	message, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.SenderID != requesterID {
		s.logger.LogSecurityEvent("forbidden_message_delete", "medium", map[string]interface{}{
			"message_id": messageID,
			"ride_id":    message.RideID,
			"user_id":    requesterID,
		})
		return nil, fmt.Errorf("%w: only the sender can delete message %s", ErrForbidden, messageID)
	}

	if message.Status == models.MessageStatusRemoved {
		return message, nil
	}

	updated, err := s.messageRepo.UpdateMessageIfStatus(ctx, messageID,
		[]models.MessageStatus{models.MessageStatusActive, models.MessageStatusFlagged},
		map[string]interface{}{"status": models.MessageStatusRemoved},
	)
	if err != nil {
		return nil, translateRepoError(err, "delete message %s", messageID)
	}
	if !updated {
		return s.GetMessage(ctx, messageID)
	}
	message.Status = models.MessageStatusRemoved

	s.transport.Broadcast(models.RoomGroup(message.RideID), EventMessageDeleted, map[string]interface{}{
		"messageId": messageID,
		"rideId":    message.RideID,
		"timestamp": time.Now(),
	}, "")

	metrics.MessagesTotal.WithLabelValues("deleted").Inc()
	s.logger.WithMessageID(messageID).WithRideID(message.RideID).WithUserID(requesterID).Info("Message deleted")

	return message, nil
}

func (s *messageService) ApplyModerationResult(ctx context.Context, messageID string, result *models.ModerationResult) (bool, error) {
	if result == nil || !result.IsFlagged {
		return false, nil
	}

	message, err := s.messageRepo.FindMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			s.logger.WithMessageID(messageID).Warn("Moderated message no longer exists")
			return false, nil
		}
		return false, fmt.Errorf("failed to load message %s: %w", messageID, err)
	}

	reason := result.FlagReason
	if reason == "" {
		reason = moderation.FlagReason(result.Categories)
	}
	now := time.Now()
	fields := map[string]interface{}{
		"is_flagged":  true,
		"flag_reason": reason,
		"moderation_details": &models.ModerationDetails{
			Categories:      result.Categories,
			CategoryScores:  result.CategoryScores,
			FlaggedAt:       now,
			ModerationModel: result.Model,
		},
	}

	switch message.Status {
	case models.MessageStatusFlagged:
		return false, nil
	case models.MessageStatusRemoved:
		return false, s.recordRemovedAudit(ctx, messageID, fields)
	}

	flagUpdate := map[string]interface{}{"status": models.MessageStatusFlagged}
	for k, v := range fields {
		flagUpdate[k] = v
	}

	updated, err := s.messageRepo.UpdateMessageIfStatus(ctx, messageID,
		[]models.MessageStatus{models.MessageStatusActive}, flagUpdate)
	if err != nil {
		return false, fmt.Errorf("failed to flag message %s: %w", messageID, err)
	}
	if !updated {
		// Deleted or flagged since it was read.
		return false, s.recordRemovedAudit(ctx, messageID, fields)
	}

	s.transport.Broadcast(models.RoomGroup(message.RideID), EventMessageFlagged, map[string]interface{}{
		"messageId":  messageID,
		"rideId":     message.RideID,
		"flagReason": reason,
		"timestamp":  now,
	}, "")

	metrics.MessagesTotal.WithLabelValues("flagged").Inc()
	s.logger.WithMessageID(messageID).WithRideID(message.RideID).WithField("flag_reason", reason).
		Warn("Message flagged by moderation")

	return true, nil
}

// recordRemovedAudit stores moderation fields on a removed message without
// changing its status. A no-op for any other status.
func (s *messageService) recordRemovedAudit(ctx context.Context, messageID string, fields map[string]interface{}) error {
	updated, err := s.messageRepo.UpdateMessageIfStatus(ctx, messageID,
		[]models.MessageStatus{models.MessageStatusRemoved}, fields)
	if err != nil {
		return fmt.Errorf("failed to record moderation on removed message %s: %w", messageID, err)
	}
	if updated {
		s.logger.WithMessageID(messageID).Info("Moderation flag recorded on removed message")
	}
	return nil
}

func (s *messageService) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	message, err := s.messageRepo.FindMessage(ctx, messageID)
	if err != nil {
		return nil, translateRepoError(err, "message %s", messageID)
	}
	return message, nil
}

func (s *messageService) ListMessages(ctx context.Context, rideID string, limit, skip int) ([]*models.Message, error) {
	if rideID == "" {
		return nil, fmt.Errorf("%w: rideId is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = s.config.HistoryLimit
	}
	if limit > 100 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	messages, err := s.messageRepo.ListMessages(ctx, rideID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (s *messageService) CountMessages(ctx context.Context, rideID string) (int64, error) {
	count, err := s.messageRepo.CountMessages(ctx, rideID)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
