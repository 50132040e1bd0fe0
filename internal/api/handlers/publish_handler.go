package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/tweetflow/internal/apperrors"
	"github.com/maheshrc27/tweetflow/internal/service"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type PublishHandler struct {
	s service.ImmediatePublishService
}

func NewPublishHandler(service service.ImmediatePublishService) *PublishHandler {
	return &PublishHandler{s: service}
}

// Publish posts immediately, outside any schedule. The duplicate guard still
// applies against the caller's publish history, and the publish joins it.
func (h *PublishHandler) Publish(c *fiber.Ctx) error {
	var req transfer.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(transfer.PublishResponse{
			Error: "Invalid request body",
		})
	}

	resp, err := h.s.PublishNow(c.UserContext(), GetUserID(c), req)
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, apperrors.ErrDuplicateContent):
			status = fiber.StatusConflict
		case apperrors.KindOf(err) == apperrors.KindValidation:
			status = fiber.StatusBadRequest
		case errors.Is(err, apperrors.ErrNotAttempted):
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}
