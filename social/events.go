package social

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/kasuganosora/socialgraph/model"
	"go.uber.org/zap"
)

const (
	EventFriendRequest  = "friend_request"
	EventFriendAccepted = "friend_accepted"
)

// Event is the payload published to a user's notification channel.
type Event struct {
	Type    string               `json:"type"`
	Request *model.FriendRequest `json:"request"`
}

// NotifyChannel is the pub/sub channel carrying events for userID.
func NotifyChannel(userID int64) string {
	return "friend:" + strconv.FormatInt(userID, 10)
}

// notify is best-effort: the edge is already committed, so a failed publish
// is only logged.
func (s *Service) notify(ctx context.Context, userID int64, eventType string, fr *model.FriendRequest) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(Event{Type: eventType, Request: fr})
	if err != nil {
		s.logger.Warn("marshal friend event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, NotifyChannel(userID), string(payload)); err != nil {
		s.logger.Warn("publish friend event failed",
			zap.String("type", eventType),
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}
