package middleware

import (
	"errors"
	"net/http"

	"bittietasks-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as a JSON envelope. BaseError maps to
// its CoreStatus; anything else becomes a generic 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal server error",
			},
		})
	}
}
