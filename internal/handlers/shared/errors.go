package handlers

import (
	"errors"
	"net/http"

	"ridechat/internal/services"
	"ridechat/internal/utils"

	"github.com/gin-gonic/gin"
)

// writeServiceError maps a service sentinel onto the JSON error envelope.
func writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrRoomClosed):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		utils.InternalServerErrorResponse(c)
		return
	}
	utils.ErrorResponse(c, status, services.ErrorCode(err), err.Error())
}
