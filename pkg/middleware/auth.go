package middleware

import (
	"strings"
	"time"

	"bittietasks-controlplane/pkg/config"
	"bittietasks-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const (
	ContextUserID        = "auth.user_id"
	ContextEmail         = "auth.email"
	ContextPhone         = "auth.phone"
	ContextPhoneVerified = "auth.phone_verified"
)

// AuthClaims are the claims the external auth provider puts in its tokens.
type AuthClaims struct {
	jwt.Claims
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	PhoneVerified bool   `json:"phone_verified"`
}

// Auth verifies the bearer token and stores caller identity on the context.
func Auth(cfg *config.Config) gin.HandlerFunc {
	secret := []byte(cfg.Auth.JWTSecret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{
				"code":    errutil.StatusUnauthorized,
				"message": "missing bearer token",
			}})
			return
		}

		raw := strings.TrimPrefix(header, "Bearer ")
		token, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
		if err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{
				"code":    errutil.StatusUnauthorized,
				"message": "invalid token",
			}})
			return
		}

		var claims AuthClaims
		if err := token.Claims(secret, &claims); err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{
				"code":    errutil.StatusUnauthorized,
				"message": "invalid token signature",
			}})
			return
		}

		if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{
				"code":    errutil.StatusUnauthorized,
				"message": "token expired",
			}})
			return
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextPhone, claims.Phone)
		c.Set(ContextPhoneVerified, claims.PhoneVerified)

		c.Next()
	}
}

// RequirePhoneVerified rejects callers without a verified phone number.
// Registered after Auth.
func RequirePhoneVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextPhoneVerified) {
			c.AbortWithStatusJSON(403, gin.H{"error": gin.H{
				"code":    errutil.StatusForbidden,
				"message": "phone verification required",
			}})
			return
		}
		c.Next()
	}
}
