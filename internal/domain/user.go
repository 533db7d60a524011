package domain

import "time"

// User es el registro local vinculado a una identidad de WorkOS.
// WorkOSUserID es la clave de reconciliación: única e inmutable.
type User struct {
	ID           string    `json:"user_id"`
	Email        string    `json:"email"`
	WorkOSUserID string    `json:"workos_user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Vinculación con Garmin; opaca para el flujo de autenticación.
	GarminAccessToken    string     `json:"-"`
	GarminRefreshToken   string     `json:"-"`
	GarminTokenExpiresAt *time.Time `json:"-"`
	GarminUserID         string     `json:"garmin_user_id,omitempty"`
	GarminConnected      bool       `json:"garmin_connected"`
	GarminConnectedAt    *time.Time `json:"garmin_connected_at,omitempty"`
	GarminScopes         string     `json:"-"`
}

// GarminLink agrupa las credenciales de Garmin asociadas a un usuario.
type GarminLink struct {
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	GarminUserID   string
	Scopes         string
}
