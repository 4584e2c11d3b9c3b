package socketio

import (
	"time"

	"connect-service/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// Init mounts a socket.io server on app. Only handshakes carrying a valid
// access token in the token query parameter are admitted; the verified
// metadata is stored as the socket's data.
func Init(app *fiber.App, secret []byte, debug bool, logger *zap.Logger) *socket.Server {
	log.DEBUG = debug

	options := socket.DefaultServerOptions()
	options.SetServeClient(true)
	options.SetAllowEIO3(true)
	options.SetPingInterval(25 * time.Second)
	options.SetPingTimeout(20 * time.Second)
	options.SetMaxHttpBufferSize(1000000)
	options.SetConnectTimeout(10 * time.Second)

	server := socket.NewServer(nil, nil)

	server.Use(func(client *socket.Socket, next func(*socket.ExtendedError)) {
		token, ok := client.Conn().Request().Query().Get("token")
		if !ok {
			next(socket.NewExtendedError("Missing or malformed JWT", nil))
			return
		}

		claims, err := utils.CheckAndExtractTokenMetadata(token, secret)
		if err != nil || claims.Otp {
			logger.Debug("socket handshake rejected", zap.Error(err))
			next(socket.NewExtendedError("Invalid or expired JWT", nil))
			return
		}

		client.SetData(claims)
		next(nil)
	})

	handler := adaptor.HTTPHandler(server.ServeHandler(options))
	app.Get("/socket.io/", handler)
	app.Post("/socket.io/", handler)

	return server
}

