package verification

import (
	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("verification",
	fx.Provide(
		NewHTTPVerifier,
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(router *gin.Engine, cfg *config.Config, h *Handler) {
	api := router.Group("/api/tasks", middleware.Auth(cfg), middleware.RequirePhoneVerified())
	api.POST("/ai-verify", h.AIVerify)
	api.POST("/verify", h.QuickVerify)
}
