package controller

import (
	"context"

	"connect-service/apperr"
	"connect-service/middleware"

	"github.com/gofiber/fiber/v2"
)

// ConnectionInput carries a user id for request, disconnect, follow and
// unfollow, and a request id for accept, reject and cancel.
type ConnectionInput struct {
	ID string `json:"id"`
}

func (h *Handler) connectionInput(c *fiber.Ctx) (string, error) {
	input := new(ConnectionInput)
	if err := c.BodyParser(input); err != nil {
		return "", apperr.Validation("Review your input")
	}
	if input.ID == "" {
		return "", apperr.Validation("id is required")
	}
	return input.ID, nil
}

func (h *Handler) ConnectionRequest(c *fiber.Ctx) error {
	to, err := h.connectionInput(c)
	if err != nil {
		return h.fail(c, err)
	}
	req, err := h.Negotiator.Request(c.UserContext(), middleware.UserID(c), to)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusCreated, req)
}

func (h *Handler) ConnectionAccept(c *fiber.Ctx) error {
	id, err := h.connectionInput(c)
	if err != nil {
		return h.fail(c, err)
	}
	req, err := h.Negotiator.Accept(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, req)
}

func (h *Handler) ConnectionReject(c *fiber.Ctx) error {
	return h.connectionAction(c, h.Negotiator.Reject)
}

func (h *Handler) ConnectionCancel(c *fiber.Ctx) error {
	return h.connectionAction(c, h.Negotiator.Cancel)
}

func (h *Handler) ConnectionDisconnect(c *fiber.Ctx) error {
	return h.connectionAction(c, h.Negotiator.Disconnect)
}

func (h *Handler) ConnectionFollow(c *fiber.Ctx) error {
	return h.connectionAction(c, h.Negotiator.Follow)
}

func (h *Handler) ConnectionUnfollow(c *fiber.Ctx) error {
	return h.connectionAction(c, h.Negotiator.Unfollow)
}

func (h *Handler) connectionAction(c *fiber.Ctx, action func(ctx context.Context, actor, id string) error) error {
	id, err := h.connectionInput(c)
	if err != nil {
		return h.fail(c, err)
	}
	if err := action(c.UserContext(), middleware.UserID(c), id); err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, nil)
}

func (h *Handler) ConnectionGraph(c *fiber.Ctx) error {
	g, err := h.Negotiator.Graph(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, g)
}
