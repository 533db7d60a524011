package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fitness-auth/internal/service"
	"fitness-auth/internal/workos"
)

// AuthHandler mantiene dependencias para los endpoints de autenticación.
type AuthHandler struct {
	logger      *zap.Logger
	authServ    *service.AuthService
	appCallback string
}

// NewAuthHandler crea una instancia de AuthHandler. appCallback es el deep
// link de la app cliente al que vuelven los callbacks del navegador.
func NewAuthHandler(logger *zap.Logger, authServ *service.AuthService, appCallback string) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		authServ:    authServ,
		appCallback: appCallback,
	}
}

// Login maneja GET /auth/login: redirige al hosted UI del proveedor.
func (h *AuthHandler) Login(c *gin.Context) {
	loginURL, err := h.authServ.LoginURL()
	if err != nil {
		h.logger.Error("build login url failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build login url"})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, loginURL)
}

// LoginURL maneja GET /auth/login-url: variante JSON para clientes que no
// pueden seguir redirects.
func (h *AuthHandler) LoginURL(c *gin.Context) {
	loginURL, err := h.authServ.LoginURL()
	if err != nil {
		h.logger.Error("build login url failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build login url"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"login_url": loginURL})
}

// Callback maneja GET /auth/callback: canjea el code y vuelve a la app con
// el access token, o con error= si algo falló. Nunca muestra una página de
// error cruda al navegador.
func (h *AuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		h.redirectWithError(c, "missing_code")
		return
	}

	user, accessToken, err := h.authServ.HandleCallback(c.Request.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, workos.ErrInvalidCode):
			h.logger.Info("callback code rejected", zap.Error(err))
			h.redirectWithError(c, "invalid_code")
		case errors.Is(err, workos.ErrProviderUnavailable):
			h.logger.Warn("identity provider unavailable", zap.Error(err))
			h.redirectWithError(c, "provider_unavailable")
		default:
			h.logger.Error("callback failed", zap.Error(err))
			h.redirectWithError(c, "authentication_failed")
		}
		return
	}

	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("user_email", user.Email)
	c.Redirect(http.StatusTemporaryRedirect, h.appCallback+"?"+q.Encode())
}

// CallbackAck maneja POST /auth/callback: acuse de recibo simple, no canjea
// el code.
func (h *AuthHandler) CallbackAck(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Code == "" {
		req.Code = c.Query("code")
	}
	if req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := GetCurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) redirectWithError(c *gin.Context, indicator string) {
	q := url.Values{}
	q.Set("error", indicator)
	c.Redirect(http.StatusTemporaryRedirect, h.appCallback+"?"+q.Encode())
}
