package payment

import (
	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/middleware"
	"bittietasks-controlplane/pkg/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("payment",
	fx.Provide(
		func(db *gorm.DB) repository.Repository[Payment] {
			return repository.ProvideStore[Payment](db)
		},
		func(db *gorm.DB) repository.Repository[WebhookEvent] {
			return repository.ProvideStore[WebhookEvent](db)
		},
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes, RegisterTaskHandlers, RunReconcileScheduler),
)

func registerRoutes(router *gin.Engine, cfg *config.Config, h *Handler) {
	api := router.Group("/api/payments", middleware.Auth(cfg))
	api.POST("/create-intent", h.CreateIntent)
	api.POST("/release-escrow", h.ReleaseEscrow)

	// The processor signs its own requests; no bearer auth on webhook routes.
	// Legacy aliases kept for processor dashboards configured years apart.
	router.POST("/api/payments/webhook", h.Webhook)
	router.POST("/api/stripe/webhook", h.Webhook)
	router.POST("/api/webhooks/stripe", h.Webhook)
}
