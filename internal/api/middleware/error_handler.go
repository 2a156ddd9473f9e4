package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// ErrorHandler renders every error as {"error":{"code","message"}}.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// Check if it's a Fiber error
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(errorBody(fiberCode(fiberErr.Code), fiberErr.Message))
		}

		// Check if it's our AppError
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= 500 {
				logger.Error("internal error",
					slog.String("code", appErr.Code),
					slog.String("message", appErr.Message),
					slog.Any("error", appErr.Err),
					slog.String("path", c.Path()),
					slog.Any("request_id", c.Locals("requestid")),
				)
			}
			if appErr.StatusCode == fiber.StatusTooManyRequests && c.GetRespHeader(fiber.HeaderRetryAfter) == "" {
				c.Set(fiber.HeaderRetryAfter, "60")
			}

			return c.Status(appErr.StatusCode).JSON(errorBody(appErr.Code, appErr.Message))
		}

		// Unknown error - log and return generic message
		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
			slog.Any("request_id", c.Locals("requestid")),
		)

		return c.Status(fiber.StatusInternalServerError).JSON(errorBody(domain.ErrInternal.Code, domain.ErrInternal.Message))
	}
}

func errorBody(code, message string) fiber.Map {
	return fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	}
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return domain.ErrNotFound.Code
	case fiber.StatusUpgradeRequired:
		return "UPGRADE_REQUIRED"
	case fiber.StatusRequestEntityTooLarge:
		return domain.ErrInvalidImage.Code
	default:
		return "HTTP_ERROR"
	}
}
