package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/scheduler"
	"github.com/kasuganosora/socialgraph/social"
	"go.uber.org/zap"
)

// Presence counts connected users. *ws.Hub satisfies it.
type Presence interface {
	Count() int
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	social   *social.Service
	cache    cache.Cache
	sched    *scheduler.Scheduler
	presence Presence
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *social.Service, c cache.Cache, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{social: svc, cache: c, sched: sched, logger: logger}
}

// WithPresence adds an online_users count to the metrics response.
func (h *AdminHandler) WithPresence(p Presence) *AdminHandler {
	h.presence = p
	return h
}

// Metrics returns the latest graph stats snapshot. Before the first snapshot
// is taken the stats are computed on the spot.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()
	snap, ok, err := social.LoadSnapshot(ctx, h.cache)
	if err != nil {
		h.logger.Warn("load stats snapshot failed", zap.Error(err))
	}
	if !ok {
		st, err := h.social.Stats(ctx)
		if err != nil {
			h.logger.Error("graph stats failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		snap = social.Snapshot{GraphStats: st, UpdatedAt: time.Now().UTC()}
	}
	resp := gin.H{
		"graph":           snap,
		"scheduler_tasks": h.sched.ListTickers(),
	}
	if h.presence != nil {
		resp["online_users"] = h.presence.Count()
	}
	c.JSON(http.StatusOK, resp)
}

// ListSchedulerTasks returns every registered task with its last run.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// With an empty adminKey every admin endpoint answers 503, so the server
// cannot be deployed with the admin surface unprotected.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
