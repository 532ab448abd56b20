package middleware

import (
	"net/http"
	"strings"

	"city311-api/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "user_email"
	ContextRole   = "user_role"
)

type JWTMiddleware struct {
	auth   *services.AuthService
	logger *zap.Logger
}

func NewJWTMiddleware(auth *services.AuthService, logger *zap.Logger) *JWTMiddleware {
	return &JWTMiddleware{auth: auth, logger: logger}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's identity in the gin context.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Authorization token required"})
			return
		}

		claims, err := m.auth.ValidateToken(token)
		if err != nil {
			m.logger.Warn("invalid token", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// ExtractToken reads a bearer token from the Authorization header, or from
// the token query parameter for websocket clients that cannot set headers.
func ExtractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
