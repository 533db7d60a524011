package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	WorkOSAPIKey      string `env:"WORKOS_API_KEY,required,notEmpty"`
	WorkOSClientID    string `env:"WORKOS_CLIENT_ID,required,notEmpty"`
	WorkOSRedirectURI string `env:"WORKOS_REDIRECT_URI,required,notEmpty"`
	WorkOSBaseURL     string `env:"WORKOS_BASE_URL" envDefault:"https://api.workos.com"`

	// Deep link de la app cliente al que vuelve el callback.
	AppCallbackURL string `env:"APP_CALLBACK_URL" envDefault:"zenith-testing://auth/callback"`

	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`
	ProfileCacheTTLSecs int    `env:"PROFILE_CACHE_TTL_SECONDS" envDefault:"60"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
