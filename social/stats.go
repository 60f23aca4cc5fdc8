package social

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kasuganosora/socialgraph/model"
)

// GraphStats is a point-in-time count of the graph.
type GraphStats struct {
	Users    int64 `json:"users"`
	Pending  int64 `json:"pending_requests"`
	Accepted int64 `json:"friendships"`
}

// Stats counts users and edges by state.
func (s *Service) Stats(ctx context.Context) (GraphStats, error) {
	var st GraphStats
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.User{}).Count(&st.Users).Error; err != nil {
		return st, err
	}
	if err := db.Model(&model.FriendRequest{}).Where("accepted = ?", false).Count(&st.Pending).Error; err != nil {
		return st, err
	}
	if err := db.Model(&model.FriendRequest{}).Where("accepted = ?", true).Count(&st.Accepted).Error; err != nil {
		return st, err
	}
	return st, nil
}

// StatsKey is the cache hash holding the latest stats snapshot.
const StatsKey = "stats:graph"

// HashStore is the slice of the cache used for the stats snapshot.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Snapshot is a cached GraphStats with the time it was taken.
type Snapshot struct {
	GraphStats
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotStats computes Stats and stores it under StatsKey.
func (s *Service) SnapshotStats(ctx context.Context, store HashStore, now time.Time) error {
	st, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("graph stats: %w", err)
	}
	return store.HSet(ctx, StatsKey, map[string]string{
		"users":            strconv.FormatInt(st.Users, 10),
		"pending_requests": strconv.FormatInt(st.Pending, 10),
		"friendships":      strconv.FormatInt(st.Accepted, 10),
		"updated_at":       now.UTC().Format(time.RFC3339),
	})
}

// LoadSnapshot reads the last snapshot. ok is false when none was taken yet.
func LoadSnapshot(ctx context.Context, store HashStore) (snap Snapshot, ok bool, err error) {
	fields, err := store.HGetAll(ctx, StatsKey)
	if err != nil {
		return snap, false, err
	}
	if len(fields) == 0 {
		return snap, false, nil
	}
	snap.Users, _ = strconv.ParseInt(fields["users"], 10, 64)
	snap.Pending, _ = strconv.ParseInt(fields["pending_requests"], 10, 64)
	snap.Accepted, _ = strconv.ParseInt(fields["friendships"], 10, 64)
	snap.UpdatedAt, _ = time.Parse(time.RFC3339, fields["updated_at"])
	return snap, true, nil
}
