// Package profile reads public user profiles used to hydrate message and
// connection payloads. Profiles are owned by another service.
package profile

import (
	"context"
	"fmt"

	"connect-service/model"

	"gorm.io/gorm"
)

type Reader interface {
	Lookup(ctx context.Context, id string) (model.PublicProfile, error)
	LookupMany(ctx context.Context, ids []string) (map[string]model.PublicProfile, error)
}

// GormReader reads the users table. Ids with no row come back as id-only
// profiles rather than errors.
type GormReader struct {
	db *gorm.DB
}

func NewGormReader(db *gorm.DB) *GormReader {
	return &GormReader{db: db}
}

func (r *GormReader) Lookup(ctx context.Context, id string) (model.PublicProfile, error) {
	profiles, err := r.LookupMany(ctx, []string{id})
	if err != nil {
		return model.PublicProfile{ID: id}, err
	}
	return profiles[id], nil
}

func (r *GormReader) LookupMany(ctx context.Context, ids []string) (map[string]model.PublicProfile, error) {
	out := make(map[string]model.PublicProfile, len(ids))
	ids = unique(ids)
	if len(ids) == 0 {
		return out, nil
	}

	var users []model.User
	if err := r.db.WithContext(ctx).
		Select("id", "full_name", "username", "profile_picture").
		Where("id IN ?", ids).
		Find(&users).Error; err != nil {
		return out, fmt.Errorf("profile lookup: %w", err)
	}

	for i := range users {
		out[users[i].ID] = users[i].Public()
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = model.PublicProfile{ID: id}
		}
	}
	return out, nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
