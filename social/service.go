// Package social implements the friend-request lifecycle over the
// friend_requests table.
//
// An edge is created pending by SendRequest, flipped to accepted by
// AcceptRequest, or deleted by RejectRequest. Nothing else writes the table.
// The acting user is always passed in explicitly.
package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/socialgraph/config"
	dbadapter "github.com/kasuganosora/socialgraph/db"
	"github.com/kasuganosora/socialgraph/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultRequestLimit  = 3
	DefaultRequestWindow = time.Minute
)

// Directory resolves identities. *account.Service satisfies it.
type Directory interface {
	Exists(ctx context.Context, id int64) (bool, error)
	UsersByID(ctx context.Context, ids []int64) ([]model.User, error)
}

// Publisher delivers notifications. cache.PubSub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// Service is the relationship engine.
type Service struct {
	db        *gorm.DB
	users     Directory
	publisher Publisher
	limit     int
	window    time.Duration
	logger    *zap.Logger
}

// NewService creates a Service. publisher may be nil. Zero limit/window in cfg
// fall back to 3 requests per minute.
func NewService(db *gorm.DB, users Directory, publisher Publisher, cfg config.FriendConfig, logger *zap.Logger) *Service {
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = DefaultRequestLimit
	}
	if cfg.RequestWindow <= 0 {
		cfg.RequestWindow = DefaultRequestWindow
	}
	return &Service{
		db:        db,
		users:     users,
		publisher: publisher,
		limit:     cfg.RequestLimit,
		window:    cfg.RequestWindow,
		logger:    logger,
	}
}

// SendRequest creates a pending edge from -> to stamped with now.
//
// Checks run in order and the first failure is returned: the addressee must
// exist, must not be the sender, must not already have an edge from the
// sender, and the sender must not have sent more than the configured limit
// within the window ending at now. "More than" is deliberate: with the default
// limit of 3 a fourth request inside the minute still goes through.
func (s *Service) SendRequest(ctx context.Context, fromID, toID int64, now time.Time) (*model.FriendRequest, error) {
	ok, err := s.users.Exists(ctx, toID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	if fromID == toID {
		return nil, ErrSelfRequest
	}

	db := s.db.WithContext(ctx)
	var existing int64
	err = db.Model(&model.FriendRequest{}).
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrDuplicateRequest
	}

	now = now.UTC()
	var recent int64
	err = db.Model(&model.FriendRequest{}).
		Where("from_user_id = ? AND created_at >= ?", fromID, now.Add(-s.window)).
		Count(&recent).Error
	if err != nil {
		return nil, err
	}
	if recent > int64(s.limit) {
		return nil, fmt.Errorf("%w: you can only send %d friend requests per %s", ErrRateLimited, s.limit, humanWindow(s.window))
	}

	fr := &model.FriendRequest{FromUserID: fromID, ToUserID: toID, CreatedAt: now}
	if err := db.Create(fr).Error; err != nil {
		// Lost a race with a concurrent identical request.
		if dbadapter.IsUniqueViolation(err) {
			return nil, ErrDuplicateRequest
		}
		return nil, fmt.Errorf("create friend request: %w", err)
	}

	s.logger.Info("friend request sent",
		zap.Int64("request_id", fr.ID),
		zap.Int64("from_user_id", fromID),
		zap.Int64("to_user_id", toID))
	s.notify(ctx, toID, EventFriendRequest, fr)
	return fr, nil
}

// humanWindow renders d for the rate-limit message: "minute", "5 minutes",
// "hour", "90 seconds". Anything finer falls back to Duration.String.
func humanWindow(d time.Duration) string {
	unit := func(n int64, name string) string {
		if n == 1 {
			return name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}
	switch {
	case d%time.Hour == 0:
		return unit(int64(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return unit(int64(d/time.Minute), "minute")
	case d%time.Second == 0:
		return unit(int64(d/time.Second), "second")
	}
	return d.String()
}

// AcceptRequest marks the pending request id addressed to actingUser as
// accepted. The pending predicate and the update are one statement, so a
// request is accepted at most once and never after it was rejected.
func (s *Service) AcceptRequest(ctx context.Context, id, actingUser int64) (*model.FriendRequest, error) {
	var fr model.FriendRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.FriendRequest{}).
			Where("id = ? AND to_user_id = ? AND accepted = ?", id, actingUser, false).
			Update("accepted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRequestNotFound
		}
		return tx.First(&fr, id).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("friend request accepted",
		zap.Int64("request_id", fr.ID),
		zap.Int64("from_user_id", fr.FromUserID),
		zap.Int64("to_user_id", fr.ToUserID))
	s.notify(ctx, fr.FromUserID, EventFriendAccepted, &fr)
	return &fr, nil
}

// RejectRequest deletes the pending request id addressed to actingUser.
func (s *Service) RejectRequest(ctx context.Context, id, actingUser int64) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND to_user_id = ? AND accepted = ?", id, actingUser, false).
		Delete(&model.FriendRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRequestNotFound
	}
	s.logger.Info("friend request rejected",
		zap.Int64("request_id", id),
		zap.Int64("to_user_id", actingUser))
	return nil
}

// ListFriends returns everyone joined to userID by an accepted edge in either
// direction, ordered by id.
func (s *Service) ListFriends(ctx context.Context, userID int64) ([]model.User, error) {
	var edges []model.FriendRequest
	err := s.db.WithContext(ctx).
		Where("accepted = ? AND (from_user_id = ? OR to_user_id = ?)", true, userID, userID).
		Find(&edges).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(edges))
	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		other := e.ToUserID
		if e.ToUserID == userID {
			other = e.FromUserID
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}
	return s.users.UsersByID(ctx, ids)
}

// ListPending returns requests addressed to userID that are not yet accepted,
// oldest first.
func (s *Service) ListPending(ctx context.Context, userID int64) ([]model.FriendRequest, error) {
	pending := make([]model.FriendRequest, 0)
	err := s.db.WithContext(ctx).
		Where("to_user_id = ? AND accepted = ?", userID, false).
		Order("created_at ASC, id ASC").
		Find(&pending).Error
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// IsNotFound reports whether err is one of the engine's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrRequestNotFound)
}
