package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fitness-auth/internal/domain"
	"fitness-auth/internal/service"
	"fitness-auth/internal/workos"
)

const currentUserKey = "current_user"

// AuthRequired valida el bearer token contra el proveedor y guarda el
// usuario local en el contexto.
func AuthRequired(logger *zap.Logger, authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		user, err := authSvc.CurrentUser(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNotAuthenticated):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
			case errors.Is(err, workos.ErrProviderUnavailable):
				logger.Warn("identity provider unavailable", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider unavailable"})
			default:
				logger.Error("resolve current user failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve user"})
			}
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// GetCurrentUser obtiene el usuario autenticado desde el contexto.
func GetCurrentUser(c *gin.Context) (domain.User, bool) {
	val, ok := c.Get(currentUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := val.(domain.User)
	return user, ok
}
