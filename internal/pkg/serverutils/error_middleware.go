package serverutils

import (
	"errors"

	"paintroom-be/internal/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps a service error to an HTTP status and a user facing message.
// Internal details never leave the server.
func StatusFor(err error) (int, string) {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.Is(err, apperr.ErrAuth):
		return fiber.StatusUnauthorized, "verification failed, try again"
	case errors.Is(err, apperr.ErrExpired):
		return fiber.StatusGone, "archive credential expired, request a new one"
	case errors.Is(err, apperr.ErrSizeLimit):
		return fiber.StatusRequestEntityTooLarge, "artifact too large"
	case errors.Is(err, apperr.ErrUpload):
		return fiber.StatusBadGateway, "upload failed"
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrSessionActive):
		return fiber.StatusConflict, "session already running"
	case errors.Is(err, apperr.ErrSessionNotActive):
		return fiber.StatusConflict, "no session running"
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusBadRequest, "invalid request"
	case errors.Is(err, apperr.ErrNotLeader):
		return fiber.StatusForbidden, "not allowed to refresh thumbnail"
	case errors.Is(err, apperr.ErrRateLimited):
		return fiber.StatusTooManyRequests, "too many requests"
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status, message := StatusFor(err)
		res := ErrorResponse{Success: false, Message: message}

		var vErr *ValidationError
		if errors.As(err, &vErr) {
			res.Errors = vErr.Fields
		}

		return ctx.Status(status).JSON(res)
	}
}
