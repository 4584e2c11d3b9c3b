package controller

import (
	"connect-service/middleware"

	"github.com/gofiber/fiber/v2"
)

// UserProfile returns the caller's public profile.
func (h *Handler) UserProfile(c *fiber.Ctx) error {
	p, err := h.Profiles.Lookup(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, p)
}
