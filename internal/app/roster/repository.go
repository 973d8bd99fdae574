// Package roster tracks which chat users receive review notifications.
package roster

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// Subscription links a chat account to a Gerrit identity. Matching is by
// email: the event's owner email is looked up against subscriptions.
type Subscription struct {
	PersonID string
	Email    string
	Enabled  bool
}

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, sub Subscription) error
	FindByEmail(ctx context.Context, email string) (Subscription, error)
	FindByPersonID(ctx context.Context, personID string) (Subscription, error)
	SetEnabled(ctx context.Context, personID string, enabled bool) error
}

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

const createSubscriptionsSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
  person_id text PRIMARY KEY,
  email text NOT NULL UNIQUE,
  enabled boolean NOT NULL DEFAULT true,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createSubscriptionsSQL)
	return err
}

func (r *PostgresRepository) Upsert(ctx context.Context, sub Subscription) error {
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO subscriptions (person_id, email, enabled, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (person_id)
		DO UPDATE SET email = EXCLUDED.email, enabled = EXCLUDED.enabled, updated_at = now()`,
		sub.PersonID, sub.Email, sub.Enabled)
	return err
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Subscription, error) {
	return r.findOne(ctx, `SELECT person_id, email, enabled FROM subscriptions WHERE email = $1`, email)
}

func (r *PostgresRepository) FindByPersonID(ctx context.Context, personID string) (Subscription, error) {
	return r.findOne(ctx, `SELECT person_id, email, enabled FROM subscriptions WHERE person_id = $1`, personID)
}

func (r *PostgresRepository) findOne(ctx context.Context, query, arg string) (Subscription, error) {
	var sub Subscription
	err := r.Pool.QueryRow(ctx, query, arg).Scan(&sub.PersonID, &sub.Email, &sub.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func (r *PostgresRepository) SetEnabled(ctx context.Context, personID string, enabled bool) error {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE subscriptions SET enabled = $2, updated_at = now() WHERE person_id = $1`,
		personID, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
