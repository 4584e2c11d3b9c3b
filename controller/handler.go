package controller

import (
	"errors"
	"strconv"
	"time"

	"connect-service/apperr"
	"connect-service/graph"
	"connect-service/media"
	"connect-service/messenger"
	"connect-service/profile"
	"connect-service/push"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const DefaultHeartbeat = 15 * time.Second

type Handler struct {
	Dispatcher *messenger.Dispatcher
	Aggregator *messenger.Aggregator
	Negotiator *graph.Negotiator
	Registry   *push.Registry
	Profiles   profile.Reader
	Media      media.Store
	// Blobs serves uploads when media lives in the database. Nil otherwise.
	Blobs     *media.DatabaseStore
	Heartbeat time.Duration
	Log       *zap.Logger
}

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "success",
		"message": nil,
		"data":    data,
	})
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		h.Log.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	} else {
		h.Log.Debug("request rejected", zap.String("path", c.Path()), zap.Stringer("kind", apperr.KindOf(err)))
	}

	var data any
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind == apperr.KindRateLimit {
		wait := int(time.Until(appErr.RetryAt).Seconds()) + 1
		if wait < 1 {
			wait = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(wait))
		data = fiber.Map{"retry_at": appErr.RetryAt}
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": apperr.Message(err),
		"data":    data,
	})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return success(c, fiber.StatusOK, fiber.Map{"online": h.Registry.Len()})
}
