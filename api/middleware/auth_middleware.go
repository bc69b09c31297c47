package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/galerly/galerly/api/common"
	"github.com/galerly/galerly/internal/auth"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// RequireAuth rejects requests without a valid Bearer access token.
func RequireAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, jwtService)
		if !ok {
			common.RespondError(c, http.StatusUnauthorized, "Invalid or missing access token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// OptionalAuth attaches claims when a valid token is present but never
// rejects. Public asset routes use this to resolve ownership.
func OptionalAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := bearerClaims(c, jwtService); ok {
			c.Set(ContextUserIDKey, claims.UserID)
			c.Set(ContextUsernameKey, claims.Username)
		}
		c.Next()
	}
}

func bearerClaims(c *gin.Context, jwtService *auth.JWTService) (*auth.Claims, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}

	claims, err := jwtService.ParseToken(parts[1])
	if err != nil {
		return nil, false
	}
	return claims, true
}

// UserID reads the authenticated user id from the context; zero means
// no authenticated user.
func UserID(c *gin.Context) uint {
	return c.GetUint(ContextUserIDKey)
}
