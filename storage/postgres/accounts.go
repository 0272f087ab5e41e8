package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/MrEthical07/otpauth"
)

const uniqueViolation = pq.ErrorCode("23505")

type accountRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r accountRow) account() otpauth.Account {
	return otpauth.Account{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (s *Store) CreateAccount(ctx context.Context, account otpauth.Account) (otpauth.Account, error) {
	if account.ID == "" || account.Username == "" || account.Email == "" {
		return otpauth.Account{}, otpauth.ErrInvalidInput
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO otpauth_accounts (id, username, email, password_hash, created_at)
		VALUES (:id, :username, :email, :password_hash, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, accountRow{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return otpauth.Account{}, otpauth.ErrDuplicateIdentity
		}
		return otpauth.Account{}, err
	}

	return account, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (otpauth.Account, error) {
	return s.getBy(ctx, `SELECT id, username, email, password_hash, created_at FROM otpauth_accounts WHERE id = $1`, id)
}

func (s *Store) GetByUsername(ctx context.Context, username string) (otpauth.Account, error) {
	return s.getBy(ctx, `SELECT id, username, email, password_hash, created_at FROM otpauth_accounts WHERE username = $1`, username)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (otpauth.Account, error) {
	return s.getBy(ctx, `SELECT id, username, email, password_hash, created_at FROM otpauth_accounts WHERE email = $1`, email)
}

func (s *Store) getBy(ctx context.Context, q, arg string) (otpauth.Account, error) {
	var row accountRow
	if err := s.db.GetContext(ctx, &row, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return otpauth.Account{}, otpauth.ErrAccountNotFound
		}
		return otpauth.Account{}, err
	}
	return row.account(), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE otpauth_accounts SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otpauth.ErrAccountNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
