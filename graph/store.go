package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connect-service/apperr"
	"connect-service/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists connection requests and the per-user edge sets.
type Store interface {
	// Tx runs fn against a Store bound to one transaction.
	Tx(ctx context.Context, fn func(Store) error) error

	FindRequest(ctx context.Context, id string) (*model.ConnectionRequest, error)
	// FindPair returns the record for the unordered pair, or nil.
	FindPair(ctx context.Context, a, b string) (*model.ConnectionRequest, error)
	// PendingSince lists from's pending requests created after since, oldest first.
	PendingSince(ctx context.Context, from string, since time.Time) ([]model.ConnectionRequest, error)
	CreateRequest(ctx context.Context, r *model.ConnectionRequest) error
	AcceptRequest(ctx context.Context, id string) error
	DeleteRequest(ctx context.Context, id string) error
	Pending(ctx context.Context, userID string) (incoming, outgoing []model.ConnectionRequest, err error)

	AddEdge(ctx context.Context, e model.UserEdge) error
	RemoveEdge(ctx context.Context, userID string, kind model.EdgeKind, peerID string) error
	HasEdge(ctx context.Context, userID string, kind model.EdgeKind, peerID string) (bool, error)
	Edges(ctx context.Context, userID string, kind model.EdgeKind) ([]model.UserEdge, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Tx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) FindRequest(ctx context.Context, id string) (*model.ConnectionRequest, error) {
	r := new(model.ConnectionRequest)
	err := s.db.WithContext(ctx).Where("id = ?", id).First(r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Connection request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	return r, nil
}

func (s *GormStore) FindPair(ctx context.Context, a, b string) (*model.ConnectionRequest, error) {
	var found []model.ConnectionRequest
	err := s.db.WithContext(ctx).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", a, b, b, a).
		Limit(1).
		Find(&found).Error
	if err != nil {
		return nil, fmt.Errorf("find pair: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *GormStore) PendingSince(ctx context.Context, from string, since time.Time) ([]model.ConnectionRequest, error) {
	var requests []model.ConnectionRequest
	err := s.db.WithContext(ctx).
		Where("from_user_id = ? AND status = ? AND created_at > ?", from, model.RequestPending, since).
		Order("created_at ASC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("pending since: %w", err)
	}
	return requests, nil
}

func (s *GormStore) CreateRequest(ctx context.Context, r *model.ConnectionRequest) error {
	err := s.db.WithContext(ctx).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("Connection request already exists")
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (s *GormStore) AcceptRequest(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Model(&model.ConnectionRequest{}).
		Where("id = ? AND status = ?", id, model.RequestPending).
		Update("status", model.RequestAccepted)
	if res.Error != nil {
		return fmt.Errorf("accept request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("Connection request is not pending")
	}
	return nil
}

func (s *GormStore) DeleteRequest(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ConnectionRequest{}).Error; err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

func (s *GormStore) Pending(ctx context.Context, userID string) ([]model.ConnectionRequest, []model.ConnectionRequest, error) {
	var incoming, outgoing []model.ConnectionRequest
	db := s.db.WithContext(ctx)
	if err := db.Where("to_user_id = ? AND status = ?", userID, model.RequestPending).
		Order("created_at DESC").Find(&incoming).Error; err != nil {
		return nil, nil, fmt.Errorf("pending incoming: %w", err)
	}
	if err := db.Where("from_user_id = ? AND status = ?", userID, model.RequestPending).
		Order("created_at DESC").Find(&outgoing).Error; err != nil {
		return nil, nil, fmt.Errorf("pending outgoing: %w", err)
	}
	return incoming, outgoing, nil
}

// AddEdge is a no-op when the edge already exists.
func (s *GormStore) AddEdge(ctx context.Context, e model.UserEdge) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&e).Error
	if err != nil {
		return fmt.Errorf("add %s edge: %w", e.Kind, err)
	}
	return nil
}

func (s *GormStore) RemoveEdge(ctx context.Context, userID string, kind model.EdgeKind, peerID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND peer_id = ?", userID, kind, peerID).
		Delete(&model.UserEdge{}).Error
	if err != nil {
		return fmt.Errorf("remove %s edge: %w", kind, err)
	}
	return nil
}

func (s *GormStore) HasEdge(ctx context.Context, userID string, kind model.EdgeKind, peerID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.UserEdge{}).
		Where("user_id = ? AND kind = ? AND peer_id = ?", userID, kind, peerID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("has %s edge: %w", kind, err)
	}
	return n > 0, nil
}

func (s *GormStore) Edges(ctx context.Context, userID string, kind model.EdgeKind) ([]model.UserEdge, error) {
	var edges []model.UserEdge
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Order("created_at ASC").
		Order("peer_id ASC").
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("list %s edges: %w", kind, err)
	}
	return edges, nil
}
