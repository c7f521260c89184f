package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

type PostScheduler interface {
	ListUpcoming(ctx context.Context, limit int) ([]*models.Post, error)
	TriggerNow(ctx context.Context, postID int64) error
}

type PostHandler struct {
	sched PostScheduler
	ps    service.PublishService
}

func NewPostHandler(sched PostScheduler, ps service.PublishService) *PostHandler {
	return &PostHandler{sched: sched, ps: ps}
}

func (h *PostHandler) ListUpcoming(c *fiber.Ctx) error {
	posts, err := h.sched.ListUpcoming(c.Context(), c.QueryInt("limit", 0))
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list upcoming posts",
		})
	}
	if posts == nil {
		posts = []*models.Post{}
	}

	return c.JSON(fiber.Map{"posts": posts})
}

func (h *PostHandler) TriggerPost(c *fiber.Ctx) error {
	postID, err := GetPostID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.sched.TriggerNow(c.Context(), postID); err != nil {
		return errorJSON(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Post dispatched",
	})
}

func (h *PostHandler) RetryPost(c *fiber.Ctx) error {
	postID, err := GetPostID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.ps.Retry(c.Context(), postID); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Post rescheduled",
	})
}

func (h *PostHandler) CheckStatus(c *fiber.Ctx) error {
	postID, err := GetPostID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	outcome, err := h.ps.CheckPublishStatus(c.Context(), postID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"status":            outcome.Status,
		"platform_post_id":  outcome.PlatformPostID,
		"platform_post_url": outcome.PlatformPostURL,
		"error_message":     outcome.ErrorMessage,
		"metadata":          outcome.Metadata,
	})
}
