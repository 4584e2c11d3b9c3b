package controller

import (
	"io"
	"strings"

	"connect-service/apperr"
	"connect-service/media"
	"connect-service/messenger"
	"connect-service/middleware"

	"github.com/gofiber/fiber/v2"
)

const maxUploadBytes = 25 << 20

type MessengerSendInput struct {
	ToUserID string `json:"to_user_id" form:"to_user_id"`
	Text     string `json:"text" form:"text"`
}

type MessengerDeleteInput struct {
	MessageID string `json:"message_id"`
}

// MessengerSend accepts JSON for text messages and multipart forms with a
// file field for image and audio messages.
func (h *Handler) MessengerSend(c *fiber.Ctx) error {
	from := middleware.UserID(c)

	input := new(MessengerSendInput)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, apperr.Validation("Review your input"))
	}
	to := strings.TrimSpace(input.ToUserID)
	content := messenger.Content{Text: input.Text}

	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		if to == "" || to == from {
			return h.fail(c, apperr.Validation("Invalid recipient"))
		}
		attachment, err := h.upload(c)
		if err != nil {
			return h.fail(c, err)
		}
		content.Media = attachment
	}

	view, err := h.Dispatcher.Send(c.UserContext(), from, to, content)
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusCreated, view)
}

// upload stores the optional file field. A form without a file is a text
// message.
func (h *Handler) upload(c *fiber.Ctx) (*messenger.Media, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, nil
	}
	if header.Size > maxUploadBytes {
		return nil, apperr.Validation("File is too large")
	}

	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return nil, err
	}

	ref, kind, err := h.Media.Put(c.UserContext(), media.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	return &messenger.Media{Kind: kind, Ref: ref}, nil
}

func (h *Handler) MessengerDelete(c *fiber.Ctx) error {
	input := new(MessengerDeleteInput)
	if err := c.BodyParser(input); err != nil {
		return h.fail(c, apperr.Validation("Review your input"))
	}

	if err := h.Dispatcher.Delete(c.UserContext(), middleware.UserID(c), input.MessageID); err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, fiber.Map{"message_id": input.MessageID})
}

func (h *Handler) MessengerHistory(c *fiber.Ctx) error {
	messages, err := h.Dispatcher.History(c.UserContext(), middleware.UserID(c), c.Params("userId"))
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, messages)
}

func (h *Handler) MessengerConversations(c *fiber.Ctx) error {
	summaries, err := h.Aggregator.Summarize(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return success(c, fiber.StatusOK, summaries)
}

// MessengerMedia serves uploads kept by the database media store.
func (h *Handler) MessengerMedia(c *fiber.Ctx) error {
	if h.Blobs == nil {
		return h.fail(c, apperr.NotFound("Media not found"))
	}
	blob, err := h.Blobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	c.Set(fiber.HeaderContentType, blob.ContentType)
	c.Set(fiber.HeaderCacheControl, "public, max-age=31536000, immutable")
	return c.Send(blob.Data)
}
