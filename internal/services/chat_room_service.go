package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/pkg/logger"
)

type ChatRoomService interface {
	CreateRoom(ctx context.Context, request *CreateRoomRequest) (*models.ChatRoom, error)
	GetRoom(ctx context.Context, rideID string) (*models.ChatRoom, error)
	AddPassenger(ctx context.Context, rideID, passengerID string) (*models.ChatRoom, error)
	RemovePassenger(ctx context.Context, rideID, passengerID string) (*models.ChatRoom, error)
	CloseRoom(ctx context.Context, rideID string) (*models.ChatRoom, error)
}

type CreateRoomRequest struct {
	RideID       string   `json:"rideId" binding:"required,participant_id"`
	DriverID     string   `json:"driverId" binding:"required,participant_id"`
	PassengerIDs []string `json:"passengerIds" binding:"omitempty,dive,participant_id"`
}

type chatRoomService struct {
	roomRepo interfaces.ChatRoomRepository
	logger   *logger.Logger
}

func NewChatRoomService(roomRepo interfaces.ChatRoomRepository, log *logger.Logger) ChatRoomService {
	return &chatRoomService{
		roomRepo: roomRepo,
		logger:   log.WithField("service", "chat_room"),
	}
}

func (s *chatRoomService) CreateRoom(ctx context.Context, request *CreateRoomRequest) (*models.ChatRoom, error) {
	rideID := strings.TrimSpace(request.RideID)
	driverID := strings.TrimSpace(request.DriverID)
	if rideID == "" || driverID == "" {
		return nil, fmt.Errorf("%w: rideId and driverId are required", ErrInvalidInput)
	}

	existing, err := s.roomRepo.FindRoomByRide(ctx, rideID)
	if err == nil {
		if existing.IsClosed {
			return nil, fmt.Errorf("%w: chat room for ride %s is closed and cannot be reopened", ErrConflict, rideID)
		}
		return nil, fmt.Errorf("%w: chat room for ride %s already exists", ErrConflict, rideID)
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing room: %w", err)
	}

	room := &models.ChatRoom{
		RideID:       rideID,
		DriverID:     driverID,
		PassengerIDs: dedupe(request.PassengerIDs),
		MessageCount: 0,
		IsClosed:     false,
	}

	if err := s.roomRepo.CreateRoom(ctx, room); err != nil {
		return nil, translateRepoError(err, "create chat room for ride %s", rideID)
	}

	s.logger.WithRideID(rideID).WithUserID(driverID).Info("Chat room created")
	return room, nil
}

func (s *chatRoomService) GetRoom(ctx context.Context, rideID string) (*models.ChatRoom, error) {
	if rideID == "" {
		return nil, fmt.Errorf("%w: rideId is required", ErrInvalidInput)
	}

	room, err := s.roomRepo.FindRoomByRide(ctx, rideID)
	if err != nil {
		return nil, translateRepoError(err, "chat room for ride %s", rideID)
	}
	return room, nil
}

func (s *chatRoomService) AddPassenger(ctx context.Context, rideID, passengerID string) (*models.ChatRoom, error) {
	if passengerID == "" {
		return nil, fmt.Errorf("%w: passengerId is required", ErrInvalidInput)
	}

	room, err := s.GetRoom(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed {
		return nil, fmt.Errorf("%w: ride %s", ErrRoomClosed, rideID)
	}
	if room.HasPassenger(passengerID) {
		s.logger.WithRideID(rideID).WithUserID(passengerID).Warn("Passenger already in chat room")
		return room, nil
	}

	if err := s.roomRepo.AddPassenger(ctx, rideID, passengerID); err != nil {
		return nil, translateRepoError(err, "add passenger to ride %s", rideID)
	}

	s.logger.WithRideID(rideID).WithUserID(passengerID).Info("Passenger added to chat room")
	return s.GetRoom(ctx, rideID)
}

func (s *chatRoomService) RemovePassenger(ctx context.Context, rideID, passengerID string) (*models.ChatRoom, error) {
	if passengerID == "" {
		return nil, fmt.Errorf("%w: passengerId is required", ErrInvalidInput)
	}

	room, err := s.GetRoom(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed {
		return nil, fmt.Errorf("%w: ride %s", ErrRoomClosed, rideID)
	}
	if !room.HasPassenger(passengerID) {
		return room, nil
	}

	if err := s.roomRepo.RemovePassenger(ctx, rideID, passengerID); err != nil {
		return nil, translateRepoError(err, "remove passenger from ride %s", rideID)
	}

	s.logger.WithRideID(rideID).WithUserID(passengerID).Info("Passenger removed from chat room")
	return s.GetRoom(ctx, rideID)
}

func (s *chatRoomService) CloseRoom(ctx context.Context, rideID string) (*models.ChatRoom, error) {
	room, err := s.GetRoom(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if room.IsClosed {
		return room, nil
	}

	now := time.Now()
	if err := s.roomRepo.UpdateRoom(ctx, rideID, map[string]interface{}{
		"is_closed": true,
		"closed_at": now,
	}); err != nil {
		return nil, translateRepoError(err, "close chat room for ride %s", rideID)
	}

	s.logger.WithRideID(rideID).Info("Chat room closed")
	return s.GetRoom(ctx, rideID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
