package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// El índice único sobre workos_user_id es obligatorio: el fallback de
// reconcile ante inserts concurrentes depende de que la base lo haga cumplir.
const usersMigration = `
CREATE TABLE IF NOT EXISTS users (
    user_id uuid PRIMARY KEY,
    email text NOT NULL,
    workos_user_id text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    garmin_access_token text,
    garmin_refresh_token text,
    garmin_token_expires_at timestamptz,
    garmin_user_id text,
    garmin_connected boolean NOT NULL DEFAULT false,
    garmin_connected_at timestamptz,
    garmin_scopes text
);

CREATE UNIQUE INDEX IF NOT EXISTS users_workos_user_id_unique
ON users (workos_user_id);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique
ON users (LOWER(email));
`

// Migrate crea el esquema de usuarios si no existe. Es idempotente.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, usersMigration)
	return err
}
