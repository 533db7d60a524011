package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"fitness-auth/internal/workos"
)

const defaultProfileTTL = time.Minute

// ProfileCache guarda perfiles ya verificados por access token para no
// pagar un round-trip al proveedor en cada request autenticado.
type ProfileCache interface {
	Get(token string) (workos.Profile, bool)
	Store(token string, profile workos.Profile)
}

// cacheTTL acota el TTL configurado a la expiración del propio token. Los
// claims se leen sin verificar la firma: sólo recortan la vida del cache,
// la confianza en el token sigue siendo del proveedor.
func cacheTTL(token string, def time.Duration) time.Duration {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return def
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return def
	}
	remaining := time.Until(exp.Time)
	if remaining < def {
		return remaining
	}
	return def
}

type memoryProfileCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryProfileEntry
}

type memoryProfileEntry struct {
	profile   workos.Profile
	expiresAt time.Time
}

// NewMemoryProfileCache crea un cache de perfiles en memoria.
func NewMemoryProfileCache(ttl time.Duration) ProfileCache {
	if ttl <= 0 {
		ttl = defaultProfileTTL
	}
	return &memoryProfileCache{
		ttl:     ttl,
		entries: make(map[string]memoryProfileEntry),
	}
}

func (c *memoryProfileCache) Get(token string) (workos.Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[token]
	if !ok {
		return workos.Profile{}, false
	}
	if time.Now().UTC().After(entry.expiresAt) {
		delete(c.entries, token)
		return workos.Profile{}, false
	}
	return entry.profile, true
}

func (c *memoryProfileCache) Store(token string, profile workos.Profile) {
	if strings.TrimSpace(token) == "" || profile.ID == "" {
		return
	}
	ttl := cacheTTL(token, c.ttl)
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = memoryProfileEntry{
		profile:   profile,
		expiresAt: time.Now().UTC().Add(ttl),
	}
}

type redisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisProfileCache crea un cache de perfiles respaldado en Redis.
func NewRedisProfileCache(client *redis.Client, ttl time.Duration) ProfileCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultProfileTTL
	}
	return &redisProfileCache{
		client: client,
		ttl:    ttl,
		prefix: "auth:profile:",
	}
}

func (c *redisProfileCache) Get(token string) (workos.Profile, bool) {
	if strings.TrimSpace(token) == "" {
		return workos.Profile{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	raw, err := c.client.Get(ctx, c.prefix+token).Bytes()
	if err != nil {
		return workos.Profile{}, false
	}
	var profile workos.Profile
	if err := json.Unmarshal(raw, &profile); err != nil || profile.ID == "" {
		return workos.Profile{}, false
	}
	return profile, true
}

func (c *redisProfileCache) Store(token string, profile workos.Profile) {
	if strings.TrimSpace(token) == "" || profile.ID == "" {
		return
	}
	ttl := cacheTTL(token, c.ttl)
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = c.client.Set(ctx, c.prefix+token, raw, ttl).Err()
}
