package messenger

import (
	"context"
	"errors"
	"fmt"

	"connect-service/apperr"
	"connect-service/model"

	"gorm.io/gorm"
)

// Store is the append-only message log.
type Store interface {
	Create(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	Delete(ctx context.Context, id string) error
	// ListForUser returns every message userID sent or received, newest first.
	ListForUser(ctx context.Context, userID string) ([]model.Message, error)
	// Thread marks unseen messages from with to userID as seen, then returns
	// the conversation oldest first.
	Thread(ctx context.Context, userID, with string) ([]model.Message, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, m *model.Message) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*model.Message, error) {
	m := new(model.Message)
	err := s.db.WithContext(ctx).Where("id = ?", id).First(m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Message{})
	if res.Error != nil {
		return fmt.Errorf("delete message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Message not found")
	}
	return nil
}

func (s *GormStore) ListForUser(ctx context.Context, userID string) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.WithContext(ctx).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *GormStore) Thread(ctx context.Context, userID, with string) ([]model.Message, error) {
	var messages []model.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Message{}).
			Where("from_user_id = ? AND to_user_id = ? AND seen = ?", with, userID, false).
			Update("seen", true).Error
		if err != nil {
			return err
		}
		return tx.
			Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
				userID, with, with, userID).
			Order("created_at ASC").
			Order("id ASC").
			Find(&messages).Error
	})
	if err != nil {
		return nil, fmt.Errorf("message thread: %w", err)
	}
	return messages, nil
}
