package otp

import (
	"encoding/json"
	"net/http"

	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
	"go.uber.org/zap"
)

type Handler struct {
	svc     Service
	sender  SMSSender
	webhook *standardwebhooks.Webhook
}

func NewHandler(cfg *config.Config, svc Service, sender SMSSender) (*Handler, error) {
	h := &Handler{svc: svc, sender: sender}

	if cfg.SMS.WebhookSecret != "" {
		wh, err := standardwebhooks.NewWebhook(cfg.SMS.WebhookSecret)
		if err != nil {
			return nil, err
		}
		h.webhook = wh
	}

	return h, nil
}

type requestCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func (h *Handler) RequestCode(c *gin.Context) {
	var req requestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.svc.Request(c.Request.Context(), req.Phone); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

type verifyCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func (h *Handler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	if err := h.svc.Verify(c.Request.Context(), req.Phone, req.Code); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "verified": true})
}

type smsHookRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SMSHook receives signed send-SMS requests. Unsigned or badly signed
// payloads are rejected outright; there is no unverified fallback.
func (h *Handler) SMSHook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.Error(errutil.BadRequest("unreadable payload", err))
		return
	}

	if h.webhook == nil {
		c.Error(errutil.Internal("sms webhook secret not configured", nil))
		return
	}

	if err := h.webhook.Verify(payload, c.Request.Header); err != nil {
		c.Error(errutil.Unauthorized("invalid webhook signature", err))
		return
	}

	var req smsHookRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		c.Error(errutil.BadRequest("invalid payload", err))
		return
	}

	if err := h.sender.Send(c.Request.Context(), req.Phone, req.Message); err != nil {
		zap.L().Error("sms delivery failed", zap.Error(err))
		c.Error(errutil.BadGateway("sms delivery failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
