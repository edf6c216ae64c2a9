package payment

import (
	"errors"
	"math"
	"net/http"

	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/middleware"
	"bittietasks-controlplane/services/feepolicy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type createIntentRequest struct {
	TaskID      string  `json:"taskId" binding:"required"`
	TaskType    string  `json:"taskType" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	Description string  `json:"description"`
}

func dollarsToCents(d float64) int64 {
	return int64(math.Round(d * 100))
}

func (h *Handler) CreateIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	res, err := h.svc.CreateIntent(c.Request.Context(), CreateIntentInput{
		TaskID:      req.TaskID,
		TaskType:    req.TaskType,
		AmountCents: dollarsToCents(req.Amount),
		Description: req.Description,
		UserID:      c.GetString(middleware.ContextUserID),
		Email:       c.GetString(middleware.ContextEmail),
		Phone:       c.GetString(middleware.ContextPhone),
	})
	if err != nil {
		c.Error(err)
		return
	}

	if res.Barter {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "barter tasks carry no fees and need no payment",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"paymentId":       res.PaymentID,
		"paymentIntentId": res.IntentID,
		"clientSecret":    res.ClientSecret,
		"feeBreakdown":    res.Breakdown.Formatted(),
	})
}

type releaseEscrowRequest struct {
	PaymentID string `json:"paymentId" binding:"required"`
	TaskID    string `json:"taskId"`
	Reason    string `json:"reason"`
}

func (h *Handler) ReleaseEscrow(c *gin.Context) {
	var req releaseEscrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	res, err := h.svc.ReleaseEscrow(c.Request.Context(), ReleaseInput{
		PaymentID: req.PaymentID,
		TaskID:    req.TaskID,
		Reason:    req.Reason,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        "escrow released",
		"paymentId":      res.PaymentID,
		"releasedAmount": feepolicy.FormatUSD(res.ReleasedCents),
		"releaseReason":  res.Reason,
	})
}

// Webhook acks every verified event. Downstream write failures are logged and
// still acked so the processor does not redeliver an event we have pinned.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.Error(errutil.BadRequest("unreadable webhook payload", err))
		return
	}

	err = h.svc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) && be.Code == errutil.StatusBadRequest {
			c.Error(err)
			return
		}

		zap.L().Error("webhook processing failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
