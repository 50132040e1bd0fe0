package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/tweetflow/internal/apperrors"
)

func GetUserID(c *fiber.Ctx) int64 {
	raw, ok := c.Locals("user_id").(string)
	if !ok {
		return 0
	}
	userID, _ := strconv.ParseInt(raw, 10, 64)
	return userID
}

// statusFor maps post lifecycle errors to a response code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrPostNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrPostNotEditable), errors.Is(err, apperrors.ErrPostNotRetryable):
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}
