package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/audit"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
)

// SocialHandler handles the friend-request endpoints.
type SocialHandler struct {
	social *social.Service
	audit  auditTrail
	logger *zap.Logger
	now    func() time.Time
}

// NewSocialHandler creates a new SocialHandler. auditor may be nil.
func NewSocialHandler(svc *social.Service, auditor Auditor, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{social: svc, audit: auditTrail{auditor}, logger: logger, now: time.Now}
}

// statusFor maps engine errors to HTTP status codes. Only an unknown
// recipient is a 404; an unknown request id is reported as a bad request.
func statusFor(err error) int {
	switch {
	case errors.Is(err, social.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, social.ErrSelfRequest),
		errors.Is(err, social.ErrDuplicateRequest),
		errors.Is(err, social.ErrRateLimited),
		errors.Is(err, social.ErrRequestNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *SocialHandler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Int64("user_id", mw.GetUserID(c)), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type friendRequestBody struct {
	ToUser userRef `json:"to_user"`
}

// userRef is a user id given either as a JSON number or a numeric string.
// A missing id stays 0, which no user has.
type userRef int64

func (r *userRef) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*r = 0
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("to_user: %q is not a user id", s)
	}
	*r = userRef(id)
	return nil
}

// SendRequest handles POST /api/friend-request/.
func (h *SocialHandler) SendRequest(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)
	var req friendRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fr, err := h.social.SendRequest(c.Request.Context(), userID, int64(req.ToUser), h.now())
	h.audit.record(c, start, audit.ActionFriendRequest, userID, req, fr, err)
	if err != nil {
		h.fail(c, "send friend request", err)
		return
	}
	c.JSON(http.StatusCreated, fr)
}

func requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// AcceptRequest handles PATCH /api/friend-request/accept/:id/.
func (h *SocialHandler) AcceptRequest(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)
	id, ok := requestID(c)
	if !ok {
		return
	}

	_, err := h.social.AcceptRequest(c.Request.Context(), id, userID)
	h.audit.record(c, start, audit.ActionFriendAccept, userID, gin.H{"id": id}, nil, err)
	if err != nil {
		h.fail(c, "accept friend request", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// RejectRequest handles DELETE /api/friend-request/reject/:id/.
func (h *SocialHandler) RejectRequest(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)
	id, ok := requestID(c)
	if !ok {
		return
	}

	err := h.social.RejectRequest(c.Request.Context(), id, userID)
	h.audit.record(c, start, audit.ActionFriendReject, userID, gin.H{"id": id}, nil, err)
	if err != nil {
		h.fail(c, "reject friend request", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListFriends handles GET /api/friends/.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	friends, err := h.social.ListFriends(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		h.fail(c, "list friends", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": identities(friends)})
}

// ListPending handles GET /api/pending-requests/.
func (h *SocialHandler) ListPending(c *gin.Context) {
	pending, err := h.social.ListPending(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		h.fail(c, "list pending requests", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending_requests": pending})
}
