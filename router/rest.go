package router

import (
	"connect-service/controller"
	"connect-service/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func Rest(app *fiber.App, h *controller.Handler, secret []byte, limiter *middleware.Limiter) {
	app.Get("/health", h.Health)

	api := app.Group("/v1", logger.New())

	auth := middleware.JWT(secret)
	identity := middleware.Identity()
	limit := func(c *fiber.Ctx) error { return c.Next() }
	if limiter != nil {
		limit = limiter.Handler()
	}

	// Messenger
	messenger := api.Group("/messenger")
	messenger.Get("/media/:id", h.MessengerMedia)
	messenger.Get("/stream", auth, identity, h.MessengerStream)
	messenger.Post("/send", auth, identity, limit, h.MessengerSend)
	messenger.Post("/delete", auth, identity, limit, h.MessengerDelete)
	messenger.Get("/history/:userId", auth, identity, h.MessengerHistory)
	messenger.Get("/conversations", auth, identity, h.MessengerConversations)

	// Connections
	api.Get("/connections", auth, identity, h.ConnectionGraph)
	connections := api.Group("/connections", auth, identity)
	connections.Post("/request", limit, h.ConnectionRequest)
	connections.Post("/accept", limit, h.ConnectionAccept)
	connections.Post("/reject", limit, h.ConnectionReject)
	connections.Post("/cancel", limit, h.ConnectionCancel)
	connections.Post("/disconnect", limit, h.ConnectionDisconnect)
	connections.Post("/follow", limit, h.ConnectionFollow)
	connections.Post("/unfollow", limit, h.ConnectionUnfollow)

	// User
	user := api.Group("/user", auth, identity)
	user.Get("/profile", h.UserProfile)
}
