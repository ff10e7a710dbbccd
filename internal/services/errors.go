package services

import (
	"errors"
	"fmt"

	"ridechat/internal/repositories/interfaces"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrRoomClosed   = errors.New("room closed")
)

// ErrorCode returns a stable machine-readable code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrRoomClosed):
		return "ROOM_CLOSED"
	default:
		return "INTERNAL_ERROR"
	}
}

// translateRepoError maps repository sentinels onto service sentinels and
// leaves every other error as a dependency failure.
func translateRepoError(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case errors.Is(err, interfaces.ErrDuplicate):
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	case errors.Is(err, interfaces.ErrClosed):
		return fmt.Errorf("%w: %s", ErrRoomClosed, msg)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
