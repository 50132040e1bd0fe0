package handlers

import (
	"log/slog"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/tweetflow/internal/service"
	"github.com/maheshrc27/tweetflow/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var (
		pc   transfer.PostCreation
		file *multipart.FileHeader
	)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			slog.Error(err.Error())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to parse form",
			})
		}

		pc.Content = c.FormValue("content")
		pc.Hashtags = c.FormValue("hashtags")
		pc.MediaURL = c.FormValue("media_url")
		pc.ScheduledFor = c.FormValue("scheduled_for")
		pc.MaxRetries, _ = strconv.Atoi(c.FormValue("max_retries"))

		if files := form.File["file"]; len(files) > 0 {
			file = files[0]
		}
	} else if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	post, err := h.s.CreatePost(c.UserContext(), userID, &pc, file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post scheduled successfully",
		"post":    transfer.NewPostView(post),
	})
}

func (h *PostHandler) BulkCreate(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var posts []transfer.PostCreation
	if err := c.BodyParser(&posts); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	ids, err := h.s.BulkCreate(c.UserContext(), userID, posts)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Posts scheduled successfully",
		"ids":     ids,
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)
	postId := c.QueryInt("id", 0)

	if postId != 0 {
		post, err := h.s.PostInfo(c.UserContext(), int64(postId), userId)
		if err != nil {
			return c.Status(statusFor(err)).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.Status(fiber.StatusOK).JSON(transfer.NewPostView(post))
	}

	posts, err := h.s.List(c.UserContext(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	views := make([]transfer.PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, transfer.NewPostView(p))
	}
	return c.Status(fiber.StatusOK).JSON(views)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	var pu transfer.PostUpdate
	if err := c.BodyParser(&pu); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	post, err := h.s.Update(c.UserContext(), userID, int64(postId), &pu)
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(transfer.NewPostView(post))
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	err := h.s.Remove(c.UserContext(), userID, int64(postId))
	if err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": "Unable to remove post",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) RetryPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postId := c.QueryInt("id", 0)

	if err := h.s.Retry(c.UserContext(), userID, int64(postId)); err != nil {
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post queued for retry",
	})
}
