// Package ws is the WebSocket surface of the friend graph: it pushes
// friend-request events and accepts friend commands on one connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	mw "github.com/kasuganosora/socialgraph/middleware"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	cache    cache.Cache
	pubsub   cache.PubSub
	sec      config.SecurityConfig
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(c cache.Cache, pubsub cache.PubSub, sec config.SecurityConfig, hub *Hub, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{
		cache:  c,
		pubsub: pubsub,
		sec:    sec,
		hub:    hub,
		router: router,
		logger: logger,
	}
	allowed := make(map[string]struct{}, len(sec.AllowedOrigins))
	for _, o := range sec.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<access jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	claims, err := mw.Authenticate(c.Request.Context(), h.sec, h.cache, c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	sess := NewSession(claims.UserID, conn, h.logger)
	sess.IP = c.ClientIP()
	sess.Token = c.Query("token")
	h.hub.Register(sess)

	// Detached from the request: the hijacked connection outlives it.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(connCtx, social.NotifyChannel(claims.UserID))
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		h.hub.Unregister(sess)
		sess.Close()
		return
	}
	go h.forwardEvents(connCtx, sess, msgCh)

	sess.Reply("connected", map[string]int64{"user_id": claims.UserID})
	h.readPump(connCtx, sess)

	unsub()
	h.hub.Unregister(sess)
	sess.Close()
	h.logger.Info("ws disconnected", zap.Int64("user_id", claims.UserID))
}

// sessionLive reports whether the access token behind s is still registered.
// Logout drops it; a cache failure counts as gone.
func (h *Handler) sessionLive(ctx context.Context, s *Session) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := h.cache.Exists(ctx, mw.SessionKey(s.Token))
	return err == nil && ok
}

// forwardEvents relays friend events as packets named after the event type.
// It closes the session once the login behind it is gone.
func (h *Handler) forwardEvents(ctx context.Context, s *Session, msgCh <-chan *cache.Message) {
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var ev struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type == "" {
				continue
			}
			if !h.sessionLive(ctx, s) {
				h.logger.Info("ws session revoked", zap.Int64("user_id", s.UserID))
				s.Close()
				return
			}
			s.Send(&Packet{Type: ev.Type, Payload: json.RawMessage(msg.Payload)})
		case <-s.Done:
			return
		}
	}
}

// readPump reads messages until the connection closes or its login is
// revoked.
func (h *Handler) readPump(ctx context.Context, s *Session) {
	s.Conn.SetReadLimit(maxMessageSize)
	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				h.logger.Warn("ws frame too large", zap.Int64("user_id", s.UserID), zap.String("ip", s.IP))
				return
			}
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("user_id", s.UserID),
					zap.Error(err))
			}
			return
		}
		s.SetReadDeadline()
		if !h.sessionLive(ctx, s) {
			h.logger.Info("ws command after logout", zap.Int64("user_id", s.UserID))
			replyError(s, "", mw.ErrSessionExpired.Error())
			return
		}
		h.router.Dispatch(ctx, s, raw)
	}
}
