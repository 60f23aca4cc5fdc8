// Package sse streams friend-graph notifications to connected clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	c         cache.Cache
	logger    *zap.Logger
	keepalive time.Duration
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger, keepalive: keepaliveInterval}
}

// ServeSSE handles GET /sse?token=<access jwt>.
// Each friend_request / friend_accepted event published for the caller is
// forwarded as an SSE event of the same name.
func (h *Handler) ServeSSE(c *gin.Context) {
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.c, c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, social.NotifyChannel(claims.UserID))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	token := c.Query("token")
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"user_id\":%d}\n\n", claims.UserID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			if !h.sessionLive(c.Request.Context(), token) {
				h.logger.Info("sse session revoked", zap.Int64("user_id", claims.UserID))
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventName(msg.Payload), msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			if !h.sessionLive(c.Request.Context(), token) {
				h.logger.Info("sse session revoked", zap.Int64("user_id", claims.UserID))
				return
			}
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// sessionLive reports whether the stream's access token is still logged in.
func (h *Handler) sessionLive(ctx context.Context, token string) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := h.c.Exists(ctx, mw.SessionKey(token))
	return err == nil && ok
}

func eventName(payload string) string {
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.Type == "" {
		return "message"
	}
	return ev.Type
}
