package storage

import (
	"context"

	"github.com/md-rashed-zaman/clinicbook/libs/db"
)

// IdempotencyRepository maps a client's Idempotency-Key to the appointment
// it created.
type IdempotencyRepository struct {
	pool *db.Pool
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Lock claims the key for the current transaction and returns the
// appointment recorded for it, or "" for a fresh key. A concurrent request
// with the same key blocks here until the first one commits.
func (r *IdempotencyRepository) Lock(ctx context.Context, ownerID, key string) (string, error) {
	q := r.pool.Conn(ctx)
	if _, err := q.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (owner_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (owner_id, idempotency_key) DO NOTHING
	`, ownerID, key); err != nil {
		return "", err
	}

	var appointmentID string
	err := q.QueryRow(ctx, `
		SELECT COALESCE(appointment_id::text, '')
		FROM booking_idempotency_keys
		WHERE owner_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, ownerID, key).Scan(&appointmentID)
	return appointmentID, err
}

func (r *IdempotencyRepository) Finalize(ctx context.Context, ownerID, key, appointmentID string) error {
	_, err := r.pool.Conn(ctx).Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3, updated_at = now()
		WHERE owner_id = $1 AND idempotency_key = $2
	`, ownerID, key, appointmentID)
	return err
}
