package model

import "time"

type MediaKind string

const (
	MediaNone  MediaKind = "none"
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// Message is immutable once written except for Seen, which flips from false
// to true when the recipient reads the thread.
type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"_id"`
	FromUserID string    `gorm:"not null;size:64;index:idx_messages_from_to" json:"from_user_id"`
	ToUserID   string    `gorm:"not null;size:64;index:idx_messages_from_to;index" json:"to_user_id"`
	Text       string    `json:"text"`
	MediaKind  MediaKind `gorm:"not null;size:8;default:none" json:"message_type"`
	MediaURL   string    `json:"media_url"`
	Seen       bool      `gorm:"not null;default:false" json:"seen"`
	CreatedAt  time.Time `gorm:"not null;index" json:"createdAt"`
}

// Counterpart returns the participant of m that is not userID.
func (m *Message) Counterpart(userID string) string {
	if m.FromUserID == userID {
		return m.ToUserID
	}
	return m.FromUserID
}

// MediaBlob backs the database media store.
type MediaBlob struct {
	ID          string    `gorm:"primaryKey;size:36"`
	ContentType string    `gorm:"not null"`
	Data        []byte    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}
