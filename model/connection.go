package model

import (
	"strconv"
	"strings"
	"time"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
)

// ConnectionRequest is the handshake record for one unordered pair of users.
// PairKey is unique, so at most one record exists per pair.
type ConnectionRequest struct {
	ID         string        `gorm:"primaryKey;size:36" json:"_id"`
	FromUserID string        `gorm:"not null;size:64;index:idx_requests_from_status" json:"from_user_id"`
	ToUserID   string        `gorm:"not null;size:64;index" json:"to_user_id"`
	PairKey    string        `gorm:"not null;size:140;uniqueIndex" json:"-"`
	Status     RequestStatus `gorm:"not null;size:16;index:idx_requests_from_status" json:"status"`
	CreatedAt  time.Time     `gorm:"not null;index" json:"createdAt"`
}

// PairKey orders the two ids so (a, b) and (b, a) share a key. The first id
// is length-prefixed so ids containing the separator cannot collide.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + "|" + b
}

type EdgeKind string

const (
	EdgeFollowing  EdgeKind = "following"
	EdgeFollower   EdgeKind = "follower"
	EdgeConnection EdgeKind = "connection"
)

// UserEdge is one member of a user's following, followers or connections set.
type UserEdge struct {
	UserID    string    `gorm:"primaryKey;size:64"`
	Kind      EdgeKind  `gorm:"primaryKey;size:16"`
	PeerID    string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"not null"`
}
