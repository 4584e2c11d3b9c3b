// Package media turns raw uploads into durable references that messages
// can carry.
package media

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"connect-service/apperr"
	"connect-service/model"

	"github.com/google/uuid"
)

type Upload struct {
	Name        string
	ContentType string
	Body        []byte
}

type Store interface {
	// Put stores the upload and returns its URL and media kind.
	Put(ctx context.Context, upload Upload) (string, model.MediaKind, error)
}

// KindOf maps a content type to a message media kind. Only images and
// audio are accepted.
func KindOf(contentType string) (model.MediaKind, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", apperr.Validation("Unsupported media type")
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return model.MediaImage, nil
	case strings.HasPrefix(mediaType, "audio/"):
		return model.MediaAudio, nil
	default:
		return "", apperr.Validation("Unsupported media type")
	}
}

// inspect validates upload and fills in a sniffed content type when the
// client sent none.
func inspect(upload *Upload) (model.MediaKind, error) {
	if len(upload.Body) == 0 {
		return "", apperr.Validation("Empty upload")
	}
	if upload.ContentType == "" || upload.ContentType == "application/octet-stream" {
		upload.ContentType = http.DetectContentType(upload.Body)
	}
	return KindOf(upload.ContentType)
}

func objectName(upload Upload) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(upload.Name))
}
