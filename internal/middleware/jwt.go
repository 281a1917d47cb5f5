package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/peerit/auth-service/internal/service"
	appErrors "github.com/peerit/auth-service/pkg/errors"
	"github.com/peerit/auth-service/pkg/response"
)

// ContextUserKey is the gin context key storing the validated token result.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token backed by a live
// session. Tokens whose session has been torn down are rejected even if the
// signature is still good.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing or invalid authorization header"))
			c.Abort()
			return
		}

		result, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, result)
		c.Next()
	}
}

// BearerToken extracts the token from the Authorization header, if any.
func BearerToken(c *gin.Context) (string, bool) {
	return bearerToken(c)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}
