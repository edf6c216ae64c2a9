package earnings

import (
	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/middleware"
	"bittietasks-controlplane/pkg/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("earnings",
	fx.Provide(
		func(db *gorm.DB) repository.Repository[Earning] {
			return repository.ProvideStore[Earning](db)
		},
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(router *gin.Engine, cfg *config.Config, h *Handler) {
	api := router.Group("/api", middleware.Auth(cfg))
	api.GET("/earnings", h.List)
}
