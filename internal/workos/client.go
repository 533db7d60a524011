package workos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Profile es la identidad externa verificada que devuelve WorkOS.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Client define las operaciones contra el proveedor de identidad.
type Client interface {
	AuthorizationURL(state string) (string, error)
	AuthenticateWithCode(ctx context.Context, code string) (Profile, string, error)
	GetUserFromToken(ctx context.Context, token string) (Profile, error)
}

var (
	// ErrConfig indica configuración de WorkOS incompleta.
	ErrConfig = errors.New("workos config incomplete")
	// ErrInvalidCode indica un authorization code inválido, vencido o ya usado.
	ErrInvalidCode = errors.New("authorization code rejected")
	// ErrInvalidToken indica un access token inválido, vencido o revocado.
	// Es un resultado esperado del flujo, no una falla del sistema.
	ErrInvalidToken = errors.New("access token invalid")
	// ErrProviderUnavailable indica una falla de red o del proveedor.
	ErrProviderUnavailable = errors.New("workos unavailable")
)

// HTTPClient implementa Client usando la API REST de User Management.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	clientID    string
	redirectURI string
	client      *http.Client
	logger      *zap.Logger
}

// NewHTTPClient construye un cliente apuntando a la API de WorkOS.
// Falla con ErrConfig si faltan credenciales; se valida una sola vez acá
// en lugar de en cada request.
func NewHTTPClient(baseURL, apiKey, clientID, redirectURI string, logger *zap.Logger) (*HTTPClient, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(clientID) == "" {
		return nil, ErrConfig
	}
	if baseURL == "" {
		baseURL = "https://api.workos.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		clientID:    clientID,
		redirectURI: redirectURI,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}, nil
}

// AuthorizationURL arma la URL de autorización de AuthKit. Construcción
// pura, sin efectos.
func (c *HTTPClient) AuthorizationURL(state string) (string, error) {
	if c.redirectURI == "" {
		return "", ErrConfig
	}
	u, err := url.Parse(c.baseURL + "/user_management/authorize")
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("provider", "authkit")
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURI)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// AuthenticateWithCode canjea un authorization code por el perfil verificado
// y un access token. El code es de un solo uso.
func (c *HTTPClient) AuthenticateWithCode(ctx context.Context, code string) (Profile, string, error) {
	reqBody := authenticateRequest{
		ClientID:     c.clientID,
		ClientSecret: c.apiKey,
		GrantType:    "authorization_code",
		Code:         code,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Profile{}, "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user_management/authenticate", bytes.NewReader(bodyBytes))
	if err != nil {
		return Profile{}, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Profile{}, "", fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		c.logger.Warn("workos authenticate unavailable", zap.Int("status", resp.StatusCode))
		return Profile{}, "", fmt.Errorf("%w: status=%d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		c.logger.Info("workos rejected code", zap.Int("status", resp.StatusCode), zap.String("body", string(respBody)))
		return Profile{}, "", fmt.Errorf("%w: status=%d", ErrInvalidCode, resp.StatusCode)
	}

	var ar authenticateResponse
	if err := json.Unmarshal(respBody, &ar); err != nil {
		return Profile{}, "", fmt.Errorf("unmarshal response: %w", err)
	}
	if ar.User.ID == "" || ar.AccessToken == "" {
		return Profile{}, "", fmt.Errorf("%w: incomplete authenticate response", ErrProviderUnavailable)
	}

	return ar.User, ar.AccessToken, nil
}

// GetUserFromToken valida un access token emitido previamente y devuelve el
// perfil asociado. Un token rechazado es ErrInvalidToken, nunca un pánico.
func (c *HTTPClient) GetUserFromToken(ctx context.Context, token string) (Profile, error) {
	if strings.TrimSpace(token) == "" {
		return Profile{}, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user_management/users/me", nil)
	if err != nil {
		return Profile{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		c.logger.Warn("workos users/me unavailable", zap.Int("status", resp.StatusCode))
		return Profile{}, fmt.Errorf("%w: status=%d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return Profile{}, fmt.Errorf("%w: status=%d", ErrInvalidToken, resp.StatusCode)
	}

	var profile Profile
	if err := json.Unmarshal(respBody, &profile); err != nil {
		return Profile{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if profile.ID == "" {
		return Profile{}, fmt.Errorf("%w: incomplete profile response", ErrProviderUnavailable)
	}

	return profile, nil
}

type authenticateRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
}

type authenticateResponse struct {
	User        Profile `json:"user"`
	AccessToken string  `json:"access_token"`
}
