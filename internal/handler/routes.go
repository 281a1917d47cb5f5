package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/peerit/auth-service/internal/middleware"
	"github.com/peerit/auth-service/internal/service"
)

// RegisterRoutes mounts the auth endpoints under the given prefix along
// with the health probes.
func RegisterRoutes(r *gin.Engine, prefix string, auth *AuthHandler, health *HealthHandler, authService *service.AuthService) {
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)

	grp := r.Group(prefix)
	grp.POST("/login", auth.Login)
	grp.POST("/magic-link", auth.CreateMagicLink)
	grp.GET("/magic/:token", auth.RedeemMagicLink)
	grp.POST("/refresh", auth.Refresh)
	grp.POST("/logout", auth.Logout)
	grp.POST("/logout-all", middleware.JWT(authService), auth.LogoutAll)
	grp.GET("/validate", auth.Validate)
}
