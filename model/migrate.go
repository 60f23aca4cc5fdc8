package model

import (
	"fmt"

	"gorm.io/gorm"
)

// FriendRequestPairIndex is the unique index on (from_user_id, to_user_id)
// that backs the one-request-per-direction rule.
const FriendRequestPairIndex = "idx_friend_request_pair"

// AutoMigrate creates or updates all tables, then confirms the friend request
// pair index exists: the relationship engine relies on it to reject a
// duplicate request that slips past its existence check.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &FriendRequest{}, &AuditLog{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	if !db.Migrator().HasIndex(&FriendRequest{}, FriendRequestPairIndex) {
		return fmt.Errorf("automigrate: index %s missing on friend_requests", FriendRequestPairIndex)
	}
	return nil
}
