package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/tweetflow/internal/service"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type PublishedHandler struct {
	posts service.PostService
	dup   service.DuplicateService
}

func NewPublishedHandler(posts service.PostService, dup service.DuplicateService) *PublishedHandler {
	return &PublishedHandler{posts: posts, dup: dup}
}

func (h *PublishedHandler) ListPublished(c *fiber.Ctx) error {
	userID := GetUserID(c)

	posts, err := h.posts.ListPublished(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list published posts",
		})
	}

	views := make([]transfer.PublishedView, 0, len(posts))
	for _, p := range posts {
		views = append(views, transfer.NewPublishedView(p))
	}
	return c.Status(fiber.StatusOK).JSON(views)
}

func (h *PublishedHandler) Deduplicate(c *fiber.Ctx) error {
	result, err := h.dup.Deduplicate(c.UserContext())
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to deduplicate published posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}
