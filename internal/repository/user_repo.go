package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fitness-auth/internal/domain"
)

// ErrDuplicateUser indica que un insert chocó con un índice único. El
// servicio lo interpreta como "otro request ya creó la fila" y relee.
var ErrDuplicateUser = errors.New("duplicate user")

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByWorkOSID(ctx context.Context, workosID string) (domain.User, error)
	UpdateEmail(ctx context.Context, id, email string) (domain.User, error)
	LinkGarmin(ctx context.Context, id string, link domain.GarminLink) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `
	user_id, email, workos_user_id, created_at, updated_at,
	COALESCE(garmin_access_token, ''), COALESCE(garmin_refresh_token, ''),
	garmin_token_expires_at, COALESCE(garmin_user_id, ''),
	garmin_connected, garmin_connected_at, COALESCE(garmin_scopes, '')
`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.WorkOSUserID,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.GarminAccessToken,
		&u.GarminRefreshToken,
		&u.GarminTokenExpiresAt,
		&u.GarminUserID,
		&u.GarminConnected,
		&u.GarminConnectedAt,
		&u.GarminScopes,
	)
	return u, err
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (user_id, email, workos_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.WorkOSUserID,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateUser
	}
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetByWorkOSID(ctx context.Context, workosID string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE workos_user_id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, workosID))
}

func (r *PgUserRepository) UpdateEmail(ctx context.Context, id, email string) (domain.User, error) {
	const query = `
		UPDATE users
		SET email = $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, id, email))
	if isUniqueViolation(err) {
		return domain.User{}, ErrDuplicateUser
	}
	return user, err
}

func (r *PgUserRepository) LinkGarmin(ctx context.Context, id string, link domain.GarminLink) error {
	const query = `
		UPDATE users
		SET garmin_access_token = $2,
		    garmin_refresh_token = $3,
		    garmin_token_expires_at = $4,
		    garmin_user_id = $5,
		    garmin_connected = true,
		    garmin_connected_at = NOW(),
		    garmin_scopes = $6,
		    updated_at = NOW()
		WHERE user_id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		id,
		link.AccessToken,
		link.RefreshToken,
		link.TokenExpiresAt,
		link.GarminUserID,
		link.Scopes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
