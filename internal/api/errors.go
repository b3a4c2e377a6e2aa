package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medicamenta/internal/errors"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

var statusByCode = map[string]int{
	apperrors.ErrNotFound.Code:             fiber.StatusNotFound,
	apperrors.ErrBadRequest.Code:           fiber.StatusBadRequest,
	apperrors.ErrUnauthorized.Code:         fiber.StatusUnauthorized,
	apperrors.ErrForbidden.Code:            fiber.StatusForbidden,
	apperrors.ErrRateLimited.Code:          fiber.StatusTooManyRequests,
	apperrors.ErrIdentityRequired.Code:     fiber.StatusBadRequest,
	apperrors.ErrDeletionNotConfirmed.Code: fiber.StatusBadRequest,
	apperrors.ErrNameMismatch.Code:         fiber.StatusConflict,
	apperrors.ErrLockTimeout.Code:          fiber.StatusConflict,
	apperrors.ErrDoseAlreadyTaken.Code:     fiber.StatusConflict,
	apperrors.ErrDoseAlreadyMissed.Code:    fiber.StatusConflict,
	apperrors.ErrTakenDoseToMissed.Code:    fiber.StatusConflict,
	apperrors.ErrStoreUnavailable.Code:     fiber.StatusServiceUnavailable,
}

// statusFor maps an AppError code to an HTTP status. Remaining domain rule violations
// are 422; anything unrecognized is a server error.
func statusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	for _, prefix := range []string{"DOSE_", "SCHED_", "MED_"} {
		if strings.HasPrefix(code, prefix) {
			return fiber.StatusUnprocessableEntity
		}
	}
	return fiber.StatusInternalServerError
}

func (s *Server) writeError(c *fiber.Ctx, err error) error {
	appErr, ok := apperrors.As(err)
	if !ok {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Code:    apperrors.ErrInternal.Code,
			Message: apperrors.ErrInternal.Message,
		})
	}

	status := statusFor(appErr.Code)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("path", c.Path()),
			zap.String("code", appErr.Code),
			zap.Error(err))
	}
	return c.Status(status).JSON(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// errorHandler renders errors that escape the handlers, such as unknown routes.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code := apperrors.ErrBadRequest.Code
			if fe.Code == fiber.StatusNotFound {
				code = apperrors.ErrNotFound.Code
			}
			return c.Status(fe.Code).JSON(errorResponse{Code: code, Message: fe.Message})
		}
		logger.Error("Unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Code:    apperrors.ErrInternal.Code,
			Message: apperrors.ErrInternal.Message,
		})
	}
}
