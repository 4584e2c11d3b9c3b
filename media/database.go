package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connect-service/apperr"
	"connect-service/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DatabaseStore keeps blobs in the media_blobs table. It suits a single
// node; the service serves them back under BaseURL.
type DatabaseStore struct {
	db      *gorm.DB
	baseURL string
}

func NewDatabaseStore(db *gorm.DB, baseURL string) *DatabaseStore {
	return &DatabaseStore{db: db, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *DatabaseStore) Put(ctx context.Context, upload Upload) (string, model.MediaKind, error) {
	kind, err := inspect(&upload)
	if err != nil {
		return "", "", err
	}

	blob := &model.MediaBlob{
		ID:          uuid.NewString(),
		ContentType: upload.ContentType,
		Data:        upload.Body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(blob).Error; err != nil {
		return "", "", fmt.Errorf("store media: %w", err)
	}
	return s.baseURL + "/" + blob.ID, kind, nil
}

func (s *DatabaseStore) Get(ctx context.Context, id string) (*model.MediaBlob, error) {
	blob := new(model.MediaBlob)
	err := s.db.WithContext(ctx).Where("id = ?", id).First(blob).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Media not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return blob, nil
}
