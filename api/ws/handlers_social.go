package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
)

// Auditor receives audit entries. *audit.Service satisfies it.
type Auditor interface {
	Log(audit.Entry)
}

// SocialHandlers serves friend-graph commands over WebSocket.
type SocialHandlers struct {
	graph   *social.Service
	auditor Auditor
	logger  *zap.Logger
	now     func() time.Time
}

// NewSocialHandlers creates SocialHandlers. auditor may be nil.
func NewSocialHandlers(graph *social.Service, auditor Auditor, logger *zap.Logger) *SocialHandlers {
	return &SocialHandlers{graph: graph, auditor: auditor, logger: logger, now: time.Now}
}

// record writes an audit entry for a state-changing command.
func (h *SocialHandlers) record(ctx context.Context, s *Session, action string, start time.Time, req, resp interface{}, err error) {
	if h.auditor == nil {
		return
	}
	uid := s.UserID
	e := audit.Entry{
		TraceID:    TraceIDFromCtx(ctx),
		UserID:     &uid,
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         s.IP,
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		e.Error = err.Error()
	}
	h.auditor.Log(e)
}

// RegisterHandlers registers the friend WS handlers.
func (h *SocialHandlers) RegisterHandlers(r *Router) {
	r.On("ping", h.HandlePing)
	r.On("friend_send", h.HandleSend)
	r.On("friend_accept", h.HandleAccept)
	r.On("friend_reject", h.HandleReject)
	r.On("friend_list", h.HandleListFriends)
	r.On("pending_list", h.HandleListPending)
}

// HandlePing answers with the server clock.
func (h *SocialHandlers) HandlePing(_ context.Context, s *Session, raw json.RawMessage) error {
	var req struct {
		ClientTS int64 `json:"ts"`
	}
	_ = json.Unmarshal(raw, &req)
	s.Reply("pong", map[string]int64{"client_ts": req.ClientTS, "server_ts": h.now().UnixMilli()})
	return nil
}

// domainError replies to engine rejections and passes anything else back to
// the router as an internal failure.
func domainError(s *Session, msgType string, err error) error {
	switch {
	case errors.Is(err, social.ErrUserNotFound),
		errors.Is(err, social.ErrSelfRequest),
		errors.Is(err, social.ErrDuplicateRequest),
		errors.Is(err, social.ErrRateLimited),
		errors.Is(err, social.ErrRequestNotFound):
		replyError(s, msgType, err.Error())
		return nil
	}
	return err
}

// HandleSend sends a friend request: {"to_user": id}.
func (h *SocialHandlers) HandleSend(ctx context.Context, s *Session, raw json.RawMessage) error {
	var req struct {
		ToUser int64 `json:"to_user"`
	}
	if err := json.Unmarshal(raw, &req); err != nil || req.ToUser == 0 {
		replyError(s, "friend_send", "to_user is required")
		return nil
	}
	start := time.Now()
	fr, err := h.graph.SendRequest(ctx, s.UserID, req.ToUser, h.now())
	h.record(ctx, s, audit.ActionFriendRequest, start, req, fr, err)
	if err != nil {
		return domainError(s, "friend_send", err)
	}
	s.Reply("friend_send_ok", fr)
	return nil
}

type requestIDPayload struct {
	ID int64 `json:"id"`
}

// HandleAccept accepts a pending request addressed to the caller: {"id": id}.
func (h *SocialHandlers) HandleAccept(ctx context.Context, s *Session, raw json.RawMessage) error {
	var req requestIDPayload
	if err := json.Unmarshal(raw, &req); err != nil || req.ID <= 0 {
		replyError(s, "friend_accept", "invalid id")
		return nil
	}
	start := time.Now()
	fr, err := h.graph.AcceptRequest(ctx, req.ID, s.UserID)
	h.record(ctx, s, audit.ActionFriendAccept, start, req, fr, err)
	if err != nil {
		return domainError(s, "friend_accept", err)
	}
	s.Reply("friend_accept_ok", fr)
	return nil
}

// HandleReject deletes a pending request addressed to the caller: {"id": id}.
func (h *SocialHandlers) HandleReject(ctx context.Context, s *Session, raw json.RawMessage) error {
	var req requestIDPayload
	if err := json.Unmarshal(raw, &req); err != nil || req.ID <= 0 {
		replyError(s, "friend_reject", "invalid id")
		return nil
	}
	start := time.Now()
	err := h.graph.RejectRequest(ctx, req.ID, s.UserID)
	h.record(ctx, s, audit.ActionFriendReject, start, req, nil, err)
	if err != nil {
		return domainError(s, "friend_reject", err)
	}
	s.Reply("friend_reject_ok", req)
	return nil
}

// HandleListFriends replies with the caller's confirmed friends.
func (h *SocialHandlers) HandleListFriends(ctx context.Context, s *Session, _ json.RawMessage) error {
	friends, err := h.graph.ListFriends(ctx, s.UserID)
	if err != nil {
		return err
	}
	s.Reply("friend_list", map[string]interface{}{"friends": friends})
	return nil
}

// HandleListPending replies with requests awaiting the caller's answer.
func (h *SocialHandlers) HandleListPending(ctx context.Context, s *Session, _ json.RawMessage) error {
	pending, err := h.graph.ListPending(ctx, s.UserID)
	if err != nil {
		return err
	}
	s.Reply("pending_list", map[string]interface{}{"pending_requests": pending})
	return nil
}
