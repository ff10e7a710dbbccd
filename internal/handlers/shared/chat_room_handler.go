package handlers

import (
	"context"
	"strconv"

	"ridechat/internal/services"
	"ridechat/internal/utils"
	"ridechat/internal/validators"
	"ridechat/pkg/queue"

	"github.com/gin-gonic/gin"
)

// FailedJobLister exposes jobs that exhausted their attempts.
type FailedJobLister interface {
	Failed(ctx context.Context, limit int64) ([]*queue.Job, error)
}

type ChatRoomHandler struct {
	roomService     services.ChatRoomService
	messageService  services.MessageService
	presenceService services.PresenceService
	failedJobs      FailedJobLister
}

func NewChatRoomHandler(
	roomService services.ChatRoomService,
	messageService services.MessageService,
	presenceService services.PresenceService,
	failedJobs FailedJobLister,
) *ChatRoomHandler {
	return &ChatRoomHandler{
		roomService:     roomService,
		messageService:  messageService,
		presenceService: presenceService,
		failedJobs:      failedJobs,
	}
}

// CreateRoom opens the chat room for a ride
func (h *ChatRoomHandler) CreateRoom(c *gin.Context) {
	var request services.CreateRoomRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBindError(c, err)
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), &request)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Chat room created successfully", room)
}

func (h *ChatRoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("ride_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Chat room retrieved successfully", room)
}

type addPassengerRequest struct {
	PassengerID string `json:"passengerId" binding:"required,participant_id"`
}

func (h *ChatRoomHandler) AddPassenger(c *gin.Context) {
	var request addPassengerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBindError(c, err)
		return
	}

	room, err := h.roomService.AddPassenger(c.Request.Context(), c.Param("ride_id"), request.PassengerID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Passenger added successfully", room)
}

func (h *ChatRoomHandler) RemovePassenger(c *gin.Context) {
	room, err := h.roomService.RemovePassenger(c.Request.Context(), c.Param("ride_id"), c.Param("passenger_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Passenger removed successfully", room)
}

func (h *ChatRoomHandler) CloseRoom(c *gin.Context) {
	room, err := h.roomService.CloseRoom(c.Request.Context(), c.Param("ride_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Chat room closed successfully", room)
}

func writeBindError(c *gin.Context, err error) {
	if fields := validators.FieldErrors(err); fields != nil {
		utils.ValidationErrorResponse(c, fields)
		return
	}
	utils.BadRequestResponse(c, "Invalid request body")
}

// ListMessages returns a page of messages, newest first
func (h *ChatRoomHandler) ListMessages(c *gin.Context) {
	rideID := c.Param("ride_id")
	params := utils.GetPaginationParams(c)

	if _, err := h.roomService.GetRoom(c.Request.Context(), rideID); err != nil {
		writeServiceError(c, err)
		return
	}

	messages, err := h.messageService.ListMessages(c.Request.Context(), rideID, params.GetLimit(), params.GetSkip())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	total, err := h.messageService.CountMessages(c.Request.Context(), rideID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Messages retrieved successfully", messages, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
		Count:      len(messages),
	})
}

func (h *ChatRoomHandler) GetPresence(c *gin.Context) {
	rideID := c.Param("ride_id")
	utils.SuccessResponse(c, "Presence retrieved successfully", gin.H{
		"rideId":         rideID,
		"connectedUsers": h.presenceService.ListPresent(rideID),
	})
}

// ListFailedModerationJobs shows jobs that exhausted their retries
func (h *ChatRoomHandler) ListFailedModerationJobs(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit < 1 {
		utils.BadRequestResponse(c, "Invalid limit")
		return
	}

	jobs, err := h.failedJobs.Failed(c.Request.Context(), limit)
	if err != nil {
		utils.ServiceUnavailableResponse(c, "Failed to read moderation queue")
		return
	}

	utils.SuccessResponseWithMeta(c, "Failed moderation jobs retrieved successfully", jobs, &utils.Meta{Count: len(jobs)})
}
