package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/account"
	"github.com/kasuganosora/socialgraph/audit"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"go.uber.org/zap"
)

// AuthHandler handles signup and token endpoints.
type AuthHandler struct {
	accounts *account.Service
	cache    cache.Cache
	sec      config.SecurityConfig
	audit    auditTrail
	logger   *zap.Logger
	conns    ConnCloser
}

// ConnCloser closes live push connections opened with an access token.
type ConnCloser interface {
	CloseToken(token string) int
}

// NewAuthHandler creates a new AuthHandler. auditor may be nil.
func NewAuthHandler(accounts *account.Service, c cache.Cache, sec config.SecurityConfig, auditor Auditor, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, cache: c, sec: sec, audit: auditTrail{auditor}, logger: logger}
}

type signupRequest struct {
	Email                string `json:"email" binding:"required,email,max=254"`
	Password             string `json:"password" binding:"required,min=8,max=128"`
	PasswordConfirmation string `json:"password_confirmation" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// WithConnCloser makes Logout also drop the caller's open push connections.
func (h *AuthHandler) WithConnCloser(cc ConnCloser) *AuthHandler {
	h.conns = cc
	return h
}

// Signup handles POST /api/signup/.
func (h *AuthHandler) Signup(c *gin.Context) {
	start := time.Now()
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), req.Email, req.Password, req.PasswordConfirmation)
	auditReq := gin.H{"email": account.NormalizeEmail(req.Email)}
	switch {
	case errors.Is(err, account.ErrPasswordMismatch), errors.Is(err, account.ErrEmailTaken):
		h.audit.record(c, start, audit.ActionSignup, 0, auditReq, nil, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("signup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := gin.H{"id": user.ID, "email": user.Email}
	h.audit.record(c, start, audit.ActionSignup, user.ID, auditReq, resp, nil)
	c.JSON(http.StatusCreated, resp)
}

// Login handles POST /api/login/.
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	auditReq := gin.H{"email": account.NormalizeEmail(req.Email)}
	user, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		h.audit.record(c, start, audit.ActionLogin, 0, auditReq, nil, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	pair, err := mw.IssueTokenPair(user.ID, h.sec.JWTSecret, h.sec.AccessTTL, h.sec.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	uid := strconv.FormatInt(user.ID, 10)
	if err := h.cache.Set(ctx, mw.SessionKey(pair.Access), uid, h.sec.AccessTTL); err != nil {
		h.logger.Error("store session failed", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := h.cache.Set(ctx, mw.RefreshKey(pair.Refresh), uid, h.sec.RefreshTTL); err != nil {
		h.logger.Error("store refresh token failed", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.audit.record(c, start, audit.ActionLogin, user.ID, auditReq, nil, nil)
	c.JSON(http.StatusOK, gin.H{
		"refresh_token": pair.Refresh,
		"access_token":  pair.Access,
	})
}

// Refresh handles POST /api/token/refresh/. A live refresh token buys a new
// access token; the refresh token itself stays valid until it expires.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := mw.ParseTokenOfType(req.RefreshToken, mw.TokenTypeRefresh, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	live, err := h.cache.Exists(ctx, mw.RefreshKey(req.RefreshToken))
	if err != nil || !live {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	access, err := mw.GenerateToken(claims.UserID, mw.TokenTypeAccess, h.sec.JWTSecret, h.sec.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	if err := h.cache.Set(ctx, mw.SessionKey(access), strconv.FormatInt(claims.UserID, 10), h.sec.AccessTTL); err != nil {
		h.logger.Error("store session failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout handles POST /api/logout/. It drops the access session and, when
// supplied, the refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	start := time.Now()
	var req logoutRequest
	_ = c.ShouldBindJSON(&req)

	access := mw.BearerToken(c)
	keys := []string{mw.SessionKey(access)}
	if req.RefreshToken != "" {
		keys = append(keys, mw.RefreshKey(req.RefreshToken))
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Del(ctx, keys...); err != nil {
		h.logger.Warn("logout: drop session failed", zap.Error(err))
	}
	if h.conns != nil {
		if n := h.conns.CloseToken(access); n > 0 {
			h.logger.Info("logout: closed ws connections", zap.Int64("user_id", mw.GetUserID(c)), zap.Int("count", n))
		}
	}

	h.audit.record(c, start, audit.ActionLogout, mw.GetUserID(c), nil, nil, nil)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
