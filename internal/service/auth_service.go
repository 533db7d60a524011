package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"fitness-auth/internal/domain"
	"fitness-auth/internal/repository"
	"fitness-auth/internal/workos"
)

var (
	// ErrNotAuthenticated representa un token ausente o rechazado. Es el
	// resultado "no autenticado" del flujo, distinto de cualquier falla.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrProfileInvalid indica un perfil externo sin identificador estable.
	ErrProfileInvalid = errors.New("external profile invalid")
)

// AuthService coordina el canje de identidad contra WorkOS y la
// reconciliación con el registro local de usuarios.
type AuthService struct {
	logger   *zap.Logger
	users    repository.UserRepository
	idp      workos.Client
	profiles ProfileCache
}

func NewAuthService(logger *zap.Logger, users repository.UserRepository, idp workos.Client, profiles ProfileCache) *AuthService {
	if profiles == nil {
		profiles = NewMemoryProfileCache(defaultProfileTTL)
	}
	return &AuthService{
		logger:   logger,
		users:    users,
		idp:      idp,
		profiles: profiles,
	}
}

// LoginURL devuelve la URL de autorización del proveedor.
func (s *AuthService) LoginURL() (string, error) {
	return s.idp.AuthorizationURL("")
}

// HandleCallback canjea el authorization code, reconcilia el perfil y
// devuelve el usuario local junto con el access token del proveedor.
func (s *AuthService) HandleCallback(ctx context.Context, code string) (domain.User, string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.User{}, "", workos.ErrInvalidCode
	}

	profile, accessToken, err := s.idp.AuthenticateWithCode(ctx, code)
	if err != nil {
		return domain.User{}, "", err
	}

	user, err := s.Reconcile(ctx, profile)
	if err != nil {
		return domain.User{}, "", err
	}

	// El token recién emitido ya está verificado; cachearlo ahorra el
	// round-trip al proveedor en el primer /auth/me.
	s.profiles.Store(accessToken, profile)

	return user, accessToken, nil
}

// CurrentUser valida un bearer token y devuelve el usuario local asociado.
// Un token rechazado por el proveedor es ErrNotAuthenticated.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrNotAuthenticated
	}

	profile, ok := s.profiles.Get(token)
	if !ok {
		p, err := s.idp.GetUserFromToken(ctx, token)
		if err != nil {
			if errors.Is(err, workos.ErrInvalidToken) {
				return domain.User{}, ErrNotAuthenticated
			}
			return domain.User{}, err
		}
		profile = p
		s.profiles.Store(token, profile)
	}

	return s.Reconcile(ctx, profile)
}

// Reconcile mapea un perfil externo verificado a exactamente un usuario
// local: lo busca por workos_user_id, lo crea si no existe y actualiza el
// email si el proveedor reporta uno distinto.
//
// El lookup y el insert no son atómicos entre sí; dos primeros logins
// concurrentes pueden pasar ambos por el miss. El índice único sobre
// workos_user_id convierte al perdedor en ErrDuplicateUser y acá se
// resuelve releyendo la fila ganadora en lugar de propagar el conflicto.
func (s *AuthService) Reconcile(ctx context.Context, profile workos.Profile) (domain.User, error) {
	externalID := strings.TrimSpace(profile.ID)
	emailAddr := normalizeEmail(profile.Email)
	if externalID == "" {
		return domain.User{}, ErrProfileInvalid
	}

	user, err := s.users.GetByWorkOSID(ctx, externalID)
	if err == nil {
		return s.applyEmailDrift(ctx, user, emailAddr)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user = domain.User{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		WorkOSUserID: externalID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.users.Create(ctx, user)
	if err == nil {
		s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("workos_user_id", externalID))
		return user, nil
	}
	if !errors.Is(err, repository.ErrDuplicateUser) {
		return domain.User{}, err
	}

	// Otro request creó la fila entre el lookup y el insert.
	existing, rerr := s.users.GetByWorkOSID(ctx, externalID)
	if rerr != nil {
		if errors.Is(rerr, pgx.ErrNoRows) {
			return domain.User{}, err
		}
		return domain.User{}, rerr
	}
	return s.applyEmailDrift(ctx, existing, emailAddr)
}

func (s *AuthService) applyEmailDrift(ctx context.Context, user domain.User, emailAddr string) (domain.User, error) {
	if emailAddr == "" || normalizeEmail(user.Email) == emailAddr {
		return user, nil
	}
	updated, err := s.users.UpdateEmail(ctx, user.ID, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			// El email nuevo ya pertenece a otra fila. La unicidad de
			// email es un invariante secundario y no bloquea el login;
			// se conserva el email almacenado.
			s.logger.Warn("email drift conflicts with another user",
				zap.String("user_id", user.ID),
				zap.String("workos_user_id", user.WorkOSUserID),
			)
			return user, nil
		}
		return domain.User{}, err
	}
	s.logger.Info("user email updated",
		zap.String("user_id", user.ID),
		zap.String("workos_user_id", user.WorkOSUserID),
	)
	return updated, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
