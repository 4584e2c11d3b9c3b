package model

import "time"

// User is the profile record owned by the profile service. This service only
// reads it to hydrate payloads.
type User struct {
	ID             string    `gorm:"primaryKey;size:64" json:"_id"`
	Email          string    `gorm:"not null" json:"email"`
	FullName       string    `gorm:"not null" json:"full_name"`
	Username       string    `gorm:"uniqueIndex;not null" json:"username"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profile_picture"`
	Location       string    `json:"location"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PublicProfile is the subset of User inlined into events and summaries.
type PublicProfile struct {
	ID             string `json:"_id"`
	FullName       string `json:"full_name"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		FullName:       u.FullName,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
	}
}
