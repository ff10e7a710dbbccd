package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ridechat/internal/services"
	"ridechat/pkg/logger"
	"ridechat/pkg/websocket"
)

const eventTimeout = 10 * time.Second

// ChatGateway routes inbound websocket events to the presence and message
// services and reports failures privately to the originating connection.
type ChatGateway struct {
	presence  services.PresenceService
	messages  services.MessageService
	transport services.Transport
	logger    *logger.Logger
}

func NewChatGateway(
	presence services.PresenceService,
	messages services.MessageService,
	transport services.Transport,
	log *logger.Logger,
) *ChatGateway {
	return &ChatGateway{
		presence:  presence,
		messages:  messages,
		transport: transport,
		logger:    log.WithField("component", "chat_gateway"),
	}
}

type roomPayload struct {
	RideID string `json:"rideId"`
	UserID string `json:"userId"`
}

type sendPayload struct {
	RideID   string `json:"rideId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

type deletePayload struct {
	MessageID string `json:"messageId"`
	RideID    string `json:"rideId"`
	UserID    string `json:"userId"`
}

func (g *ChatGateway) HandleEvent(client *websocket.Client, event string, data json.RawMessage) {
	ctx, cancel := context.WithTimeout(client.Context(), eventTimeout)
	defer cancel()

	var err error
	switch event {
	case services.EventJoinRoom:
		var p roomPayload
		if err = g.decode(client, data, &p, func() string { return p.UserID }); err == nil {
			err = g.presence.Join(ctx, client.ID, p.RideID, p.UserID)
		}

	case services.EventLeaveRoom:
		var p roomPayload
		if err = g.decode(client, data, &p, func() string { return p.UserID }); err == nil {
			err = g.presence.Leave(ctx, client.ID, p.RideID, p.UserID)
		}

	case services.EventMessageSend:
		var p sendPayload
		if err = g.decode(client, data, &p, func() string { return p.SenderID }); err == nil {
			_, err = g.messages.SendMessage(ctx, &services.SendMessageRequest{
				RideID:       p.RideID,
				SenderID:     p.SenderID,
				Content:      p.Content,
				ConnectionID: client.ID,
			})
		}

	case services.EventMessageDelete:
		var p deletePayload
		if err = g.decode(client, data, &p, func() string { return p.UserID }); err == nil {
			_, err = g.messages.DeleteMessage(ctx, p.MessageID, p.UserID)
		}

	case services.EventUsersList:
		var p roomPayload
		if err = g.decode(client, data, &p, nil); err == nil {
			g.transport.SendTo(client.ID, services.EventUsersConnected, map[string]interface{}{
				"rideId":         p.RideID,
				"connectedUsers": g.presence.ListPresent(p.RideID),
				"timestamp":      time.Now(),
			})
		}

	case services.EventTypingStart, services.EventTypingStop:
		var p roomPayload
		if g.decode(client, data, &p, func() string { return p.UserID }) != nil {
			return
		}
		if event == services.EventTypingStart {
			g.presence.TypingStart(client.ID, p.RideID, p.UserID)
		} else {
			g.presence.TypingStop(client.ID, p.RideID, p.UserID)
		}
		return

	default:
		err = fmt.Errorf("%w: unknown event %q", services.ErrInvalidInput, event)
	}

	if err != nil {
		g.sendError(client, event, err)
	}
}

func (g *ChatGateway) HandleDisconnect(client *websocket.Client) {
	g.presence.OnDisconnect(client.ID)
}

// decode unmarshals data into v and, for authenticated connections, checks
// that the acting user named in the payload is the token subject.
func (g *ChatGateway) decode(client *websocket.Client, data json.RawMessage, v interface{}, actor func() string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing event data", services.ErrInvalidInput)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed event data", services.ErrInvalidInput)
	}
	if actor != nil && client.UserID != "" {
		if id := actor(); id != "" && id != client.UserID {
			g.logger.LogSecurityEvent("identity_mismatch", "high", map[string]interface{}{
				"connection_id":   client.ID,
				"user_id":         client.UserID,
				"claimed_user_id": id,
			})
			return fmt.Errorf("%w: user %s does not match authenticated user", services.ErrUnauthorized, id)
		}
	}
	return nil
}

func (g *ChatGateway) sendError(client *websocket.Client, event string, err error) {
	code := services.ErrorCode(err)
	message := err.Error()
	if code == "INTERNAL_ERROR" {
		g.logger.WithError(err).WithConnectionID(client.ID).WithField("event", event).Error("Event handling failed")
		message = fmt.Sprintf("Failed to handle %s", event)
	}

	g.transport.SendTo(client.ID, services.EventError, map[string]interface{}{
		"event":     event,
		"code":      code,
		"message":   message,
		"timestamp": time.Now(),
	})
}
