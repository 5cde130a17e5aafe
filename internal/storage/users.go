package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/studyloop/internal/domain"
)

// InsertUser stores a new account. A taken email returns ErrConflict.
func (db *DB) InsertUser(ctx context.Context, u *domain.User) error {
	u.ID = newID(u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = db.now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, email_verified, verification_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, boolInt(u.EmailVerified), nullString(u.VerificationToken), toMillis(u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert user %s: %w", u.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user %s: %w", u.Email, err)
	}
	return nil
}

// FindUserByEmail returns nil when no account uses email.
func (db *DB) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return db.findUser(ctx, "email", email)
}

// FindUserByID returns nil when the account does not exist.
func (db *DB) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	return db.findUser(ctx, "id", id)
}

func (db *DB) findUser(ctx context.Context, column, value string) (*domain.User, error) {
	var (
		u        domain.User
		verified int
		token    sql.NullString
		created  int64
	)
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, email, password_hash, email_verified, verification_token, created_at
		FROM users WHERE `+column+` = ?
	`, value)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &verified, &token, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by %s: %w", column, err)
	}
	u.EmailVerified = verified == 1
	u.VerificationToken = token.String
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

// UpdateUserVerification sets the verified flag and the outstanding token.
func (db *DB) UpdateUserVerification(ctx context.Context, userID string, verified bool, token string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE users SET email_verified = ?, verification_token = ? WHERE id = ?
	`, boolInt(verified), nullString(token), userID)
	if err != nil {
		return fmt.Errorf("failed to update verification for user %s: %w", userID, err)
	}
	return nil
}
