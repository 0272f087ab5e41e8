package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/segmentio/ksuid"
)

var errTokenWindowInvalid = errors.New("token expiry must be after creation")

// Replace upserts the (account, purpose) slot. The row ID changes on every
// issue, so a stale reader can never confuse two generations of the slot.
func (s *Store) Replace(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	createdAt, expiresAt time.Time,
) error {
	if !expiresAt.After(createdAt) {
		return errTokenWindowInvalid
	}

	const q = `INSERT INTO otpauth_tokens (id, account_id, purpose, digest, created_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (account_id, purpose) DO UPDATE SET
		  id = EXCLUDED.id,
		  digest = EXCLUDED.digest,
		  created_at = EXCLUDED.created_at,
		  expires_at = EXCLUDED.expires_at,
		  consumed = false`
	_, err := s.db.ExecContext(ctx, q,
		ksuid.New().String(), accountID, purpose, digest[:], createdAt.UTC(), expiresAt.UTC())
	return err
}

// Consume marks the slot consumed when it matches and is live. The row lock
// taken by UPDATE serializes concurrent callers; the loser sees consumed=true
// and matches nothing.
func (s *Store) Consume(
	ctx context.Context,
	accountID, purpose string,
	digest [32]byte,
	now time.Time,
) (bool, error) {
	const q = `UPDATE otpauth_tokens SET consumed = true
		WHERE account_id = $1 AND purpose = $2 AND digest = $3
		  AND NOT consumed AND expires_at > $4
		RETURNING id`
	var id string
	err := s.db.QueryRowxContext(ctx, q, accountID, purpose, digest[:], now.UTC()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PruneExpired deletes rows whose window closed before now.
func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM otpauth_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
