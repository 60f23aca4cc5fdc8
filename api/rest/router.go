package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers bundles the REST handlers mounted by Register.
type Handlers struct {
	Auth   *AuthHandler
	User   *UserHandler
	Social *SocialHandler
	Admin  *AdminHandler
}

// Register mounts every REST route on r. auth guards the user-facing routes;
// admin guards /api/admin. A nil Admin handler leaves the admin group unmounted.
func Register(r gin.IRouter, h Handlers, auth gin.HandlerFunc, admin ...gin.HandlerFunc) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/signup/", h.Auth.Signup)
	api.POST("/login/", h.Auth.Login)
	api.POST("/token/refresh/", h.Auth.Refresh)

	authed := api.Group("", auth)
	authed.POST("/logout/", h.Auth.Logout)
	authed.PATCH("/update_name/", h.User.UpdateName)
	authed.PUT("/update_name/", h.User.UpdateName)
	authed.GET("/search/", h.User.Search)

	authed.POST("/friend-request/", h.Social.SendRequest)
	authed.PATCH("/friend-request/accept/:id/", h.Social.AcceptRequest)
	authed.DELETE("/friend-request/reject/:id/", h.Social.RejectRequest)
	authed.GET("/friends/", h.Social.ListFriends)
	authed.GET("/pending-requests/", h.Social.ListPending)

	if h.Admin != nil {
		adm := api.Group("/admin", admin...)
		adm.GET("/metrics", h.Admin.Metrics)
		adm.GET("/scheduler", h.Admin.ListSchedulerTasks)
	}
}
