package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/account"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/config"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/model"
	"go.uber.org/zap"
)

// UserHandler handles profile and directory endpoints.
type UserHandler struct {
	accounts *account.Service
	search   config.SearchConfig
	audit    auditTrail
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler. auditor may be nil.
func NewUserHandler(accounts *account.Service, search config.SearchConfig, auditor Auditor, logger *zap.Logger) *UserHandler {
	if search.PageSize <= 0 {
		search.PageSize = 10
	}
	if search.MaxPageSize < search.PageSize {
		search.MaxPageSize = search.PageSize
	}
	return &UserHandler{accounts: accounts, search: search, audit: auditTrail{auditor}, logger: logger}
}

type updateNameRequest struct {
	FirstName *string `json:"first_name" binding:"omitempty,max=150"`
	LastName  *string `json:"last_name" binding:"omitempty,max=150"`
}

// UpdateName handles PATCH and PUT /api/update_name/.
func (h *UserHandler) UpdateName(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)
	var req updateNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.UpdateName(c.Request.Context(), userID, req.FirstName, req.LastName)
	if errors.Is(err, account.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("update name failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := gin.H{"first_name": user.FirstName, "last_name": user.LastName}
	h.audit.record(c, start, audit.ActionUpdateName, userID, req, resp, nil)
	c.JSON(http.StatusOK, resp)
}

type searchQuery struct {
	Search   string `form:"search"`
	Page     int    `form:"page" binding:"omitempty,min=1,max=1000000"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1"`
}

// Search handles GET /api/search/?search=&page=&page_size=.
func (h *UserHandler) Search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = h.search.PageSize
	}
	if q.PageSize > h.search.MaxPageSize {
		q.PageSize = h.search.MaxPageSize
	}

	res, err := h.accounts.Search(c.Request.Context(), q.Search, q.Page, q.PageSize)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   res.Total,
		"page":    q.Page,
		"results": identities(res.Users),
	})
}

// identity is the public shape of a user in listings.
type identity struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func identities(users []model.User) []identity {
	out := make([]identity, len(users))
	for i, u := range users {
		out[i] = identity{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
	}
	return out
}
