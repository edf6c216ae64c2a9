package verification

import (
	"net/http"

	"bittietasks-controlplane/pkg/errutil"
	"bittietasks-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type aiVerifyRequest struct {
	TaskID     string `json:"taskId" binding:"required"`
	AfterPhoto string `json:"afterPhoto"`
	Notes      string `json:"notes"`
}

func (h *Handler) AIVerify(c *gin.Context) {
	var req aiVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	outcome, err := h.svc.AIVerify(c.Request.Context(), VerifyRequest{
		TaskID: req.TaskID,
		UserID: c.GetString(middleware.ContextUserID),
		Photo:  req.AfterPhoto,
		Notes:  req.Notes,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "verification": outcome})
}

type quickVerifyRequest struct {
	TaskID            string `json:"taskId" binding:"required"`
	VerificationPhoto string `json:"verificationPhoto"`
	Notes             string `json:"notes"`
}

func (h *Handler) QuickVerify(c *gin.Context) {
	var req quickVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	outcome, err := h.svc.QuickVerify(c.Request.Context(), VerifyRequest{
		TaskID: req.TaskID,
		UserID: c.GetString(middleware.ContextUserID),
		Photo:  req.VerificationPhoto,
		Notes:  req.Notes,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "verification": outcome})
}
