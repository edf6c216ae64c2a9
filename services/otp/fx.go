package otp

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("otp",
	fx.Provide(
		NewLogSender,
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func registerRoutes(router *gin.Engine, h *Handler) {
	router.POST("/api/otp/request", h.RequestCode)
	router.POST("/api/otp/verify", h.VerifyCode)
	router.POST("/api/sms-hook", h.SMSHook)
}
