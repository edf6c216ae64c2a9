package earnings

import (
	"net/http"
	"strconv"

	"bittietasks-controlplane/pkg/db/pagination"
	"bittietasks-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)

	page := pagination.Pagination{}
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "")); err == nil {
		page.Limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "")); err == nil {
		page.Offset = v
	}

	rows, total, err := h.svc.List(c.Request.Context(), userID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"earnings": rows,
		"total":    total,
	})
}
