package controller

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"connect-service/middleware"
	"connect-service/push"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// MessengerStream holds a server-sent events stream open for the caller and
// forwards every event published to their push channel.
func (h *Handler) MessengerStream(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ch := h.Registry.Register(userID)
		defer h.Registry.UnregisterChannel(ch)

		if err := streamEvents(w, ch, heartbeat); err != nil {
			h.Log.Debug("push stream ended", zap.String("user", userID), zap.Error(err))
		}
	}))
	return nil
}

// streamEvents writes ch to w until ch is closed or a write fails. A comment
// frame every heartbeat surfaces dead clients as write errors.
func streamEvents(w *bufio.Writer, ch *push.Channel, heartbeat time.Duration) error {
	if err := writeFrame(w, "log", map[string]string{"message": "connected"}); err != nil {
		return err
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ch.Done():
			return nil
		case ev := <-ch.Events():
			if err := writeFrame(w, ev.Type, ev.Payload); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

func writeFrame(w *bufio.Writer, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	return w.Flush()
}
