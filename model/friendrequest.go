package model

import "time"

// FriendRequest is a directed edge in the friend graph. Accepted edges are
// friendships; rejected ones are deleted, so no negative state exists.
type FriendRequest struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FromUserID int64     `gorm:"uniqueIndex:idx_friend_request_pair,priority:1;index:idx_friend_request_from_created,priority:1;not null" json:"from_user"`
	ToUserID   int64     `gorm:"uniqueIndex:idx_friend_request_pair,priority:2;index:idx_friend_request_to;not null" json:"to_user"`
	CreatedAt  time.Time `gorm:"index:idx_friend_request_from_created,priority:2;not null" json:"timestamp"`
	Accepted   bool      `gorm:"not null;default:false" json:"accepted"`
}
