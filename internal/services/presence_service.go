package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ridechat/internal/config"
	"ridechat/internal/metrics"
	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/pkg/logger"
)

// PresenceService tracks which users are live in which ride rooms and fans
// out presence and typing events.
type PresenceService interface {
	Join(ctx context.Context, connID, rideID, userID string) error
	Leave(ctx context.Context, connID, rideID, userID string) error
	OnDisconnect(connID string)
	ListPresent(rideID string) []string

	TypingStart(connID, rideID, userID string)
	TypingStop(connID, rideID, userID string)
}

type presenceKey struct {
	userID string
	rideID string
}

type presenceEntry struct {
	connID    string
	session   uint64
	joinedAt  time.Time
	announced bool
}

type presenceService struct {
	roomRepo    interfaces.ChatRoomRepository
	messageRepo interfaces.MessageRepository
	transport   Transport
	config      *config.ChatConfig
	logger      *logger.Logger

	mu      sync.Mutex
	entries map[presenceKey]*presenceEntry
	byConn  map[string]map[presenceKey]struct{}
	nextID  uint64
}

func NewPresenceService(
	cfg *config.ChatConfig,
	roomRepo interfaces.ChatRoomRepository,
	messageRepo interfaces.MessageRepository,
	transport Transport,
	log *logger.Logger,
) PresenceService {
	return &presenceService{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		transport:   transport,
		config:      cfg,
		logger:      log.WithField("service", "presence"),
		entries:     make(map[presenceKey]*presenceEntry),
		byConn:      make(map[string]map[presenceKey]struct{}),
	}
}

func (s *presenceService) Join(ctx context.Context, connID, rideID, userID string) error {
	if rideID == "" || userID == "" {
		return fmt.Errorf("%w: rideId and userId are required", ErrInvalidInput)
	}

	room, err := s.roomRepo.FindRoomByRide(ctx, rideID)
	if err != nil {
		return translateRepoError(err, "chat room for ride %s", rideID)
	}
	if !room.IsMember(userID) {
		s.logger.LogSecurityEvent("unauthorized_join", "medium", map[string]interface{}{
			"ride_id":       rideID,
			"user_id":       userID,
			"connection_id": connID,
		})
		return fmt.Errorf("%w: user %s is not authorized for ride %s", ErrUnauthorized, userID, rideID)
	}

	key := presenceKey{userID: userID, rideID: rideID}
	group := models.RoomGroup(rideID)

	s.mu.Lock()
	if !s.transport.IsConnected(connID) {
		s.mu.Unlock()
		return fmt.Errorf("connection %s closed before join completed", connID)
	}

	existing, rejoin := s.entries[key]
	if rejoin && existing.connID != connID {
		s.transport.Leave(existing.connID, group)
		s.unindexLocked(existing.connID, key)
	}

	s.nextID++
	entry := &presenceEntry{
		connID:    connID,
		session:   s.nextID,
		joinedAt:  time.Now(),
		announced: rejoin && existing.announced,
	}
	s.entries[key] = entry
	s.indexLocked(connID, key)
	s.transport.Join(connID, group)
	metrics.PresenceEntries.Set(float64(len(s.entries)))
	s.mu.Unlock()

	history, err := s.messageRepo.ListMessages(ctx, rideID, s.config.HistoryLimit, 0)
	if err != nil {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && current.session == entry.session {
			s.removeLocked(key, current)
		}
		s.mu.Unlock()
		return fmt.Errorf("failed to load message history: %w", err)
	}

	s.transport.SendTo(connID, EventRoomJoined, map[string]interface{}{
		"rideId":         rideID,
		"userId":         userID,
		"chatRoom":       room,
		"messageHistory": history,
		"timestamp":      time.Now(),
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[key]
	if !ok || current.session != entry.session || current.announced {
		return nil
	}
	current.announced = true
	s.transport.Broadcast(group, EventUserJoined, presencePayload(userID, rideID), connID)

	s.logger.WithRideID(rideID).WithUserID(userID).WithConnectionID(connID).Info("User joined chat room")
	return nil
}

func (s *presenceService) Leave(ctx context.Context, connID, rideID, userID string) error {
	if rideID == "" || userID == "" {
		return fmt.Errorf("%w: rideId and userId are required", ErrInvalidInput)
	}

	key := presenceKey{userID: userID, rideID: rideID}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.connID != connID {
		return nil
	}
	s.removeLocked(key, entry)

	s.logger.WithRideID(rideID).WithUserID(userID).WithConnectionID(connID).Info("User left chat room")
	return nil
}

func (s *presenceService) OnDisconnect(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.byConn[connID]
	if len(keys) == 0 {
		return
	}

	for key := range keys {
		if entry, ok := s.entries[key]; ok && entry.connID == connID {
			s.removeLocked(key, entry)
			s.logger.WithRideID(key.rideID).WithUserID(key.userID).WithConnectionID(connID).
				Info("User disconnected from chat room")
		}
	}
	delete(s.byConn, connID)
}

// removeLocked drops the entry, leaves the transport group and announces
// the departure if the arrival was announced.
func (s *presenceService) removeLocked(key presenceKey, entry *presenceEntry) {
	delete(s.entries, key)
	s.unindexLocked(entry.connID, key)
	metrics.PresenceEntries.Set(float64(len(s.entries)))

	group := models.RoomGroup(key.rideID)
	s.transport.Leave(entry.connID, group)
	if entry.announced {
		s.transport.Broadcast(group, EventUserLeft, presencePayload(key.userID, key.rideID), entry.connID)
	}
}

func (s *presenceService) indexLocked(connID string, key presenceKey) {
	keys, ok := s.byConn[connID]
	if !ok {
		keys = make(map[presenceKey]struct{})
		s.byConn[connID] = keys
	}
	keys[key] = struct{}{}
}

func (s *presenceService) unindexLocked(connID string, key presenceKey) {
	if keys, ok := s.byConn[connID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(s.byConn, connID)
		}
	}
}

func (s *presenceService) ListPresent(rideID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]string, 0)
	for key := range s.entries {
		if key.rideID == rideID {
			users = append(users, key.userID)
		}
	}
	sort.Strings(users)
	return users
}

func (s *presenceService) TypingStart(connID, rideID, userID string) {
	s.typing(connID, rideID, userID, EventTypingActive)
}

func (s *presenceService) TypingStop(connID, rideID, userID string) {
	s.typing(connID, rideID, userID, EventTypingStopped)
}

// typing broadcasts only for a connection that currently holds the presence
// entry; anything else is dropped silently.
func (s *presenceService) typing(connID, rideID, userID, event string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[presenceKey{userID: userID, rideID: rideID}]
	if !ok || entry.connID != connID {
		return
	}

	s.transport.Broadcast(models.RoomGroup(rideID), event, presencePayload(userID, rideID), connID)
}

func presencePayload(userID, rideID string) map[string]interface{} {
	return map[string]interface{}{
		"userId":    userID,
		"rideId":    rideID,
		"timestamp": time.Now(),
	}
}
