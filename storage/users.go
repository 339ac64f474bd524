package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is an account created on first Google sign-in.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	GoogleSub string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GoogleProfile is the identity returned by Google sign-in.
type GoogleProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// UserStorage persists users.
type UserStorage interface {
	UpsertGoogleUser(ctx context.Context, p GoogleProfile) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
}

// SQLiteUserStorage implements UserStorage on SQLite.
type SQLiteUserStorage struct {
	sqlite *SQLite
}

// NewSQLiteUserStorage creates a user storage backed by sqlite.
func NewSQLiteUserStorage(sqlite *SQLite) *SQLiteUserStorage {
	return &SQLiteUserStorage{sqlite: sqlite}
}

// UpsertGoogleUser creates the user for a Google subject, or refreshes the
// profile fields of the existing one. The subject is matched first. An account
// without a subject is linked by email only when Google verified that email.
// ErrUserConflict is returned when the email belongs to another account.
func (s *SQLiteUserStorage) UpsertGoogleUser(ctx context.Context, p GoogleProfile) (*User, error) {
	now := time.Now().UTC()

	var id string
	err := s.sqlite.WithTransaction(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE google_sub = ?", p.Subject).Scan(&id)
		switch {
		case err == nil:
			var other string
			err = tx.QueryRowContext(ctx,
				"SELECT id FROM users WHERE email = ? AND id != ?", p.Email, id).Scan(&other)
			if err == nil {
				return fmt.Errorf("%w: email %s is used by another account", ErrUserConflict, p.Email)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to look up user: %w", err)
			}
			return updateGoogleUser(ctx, tx, id, p, now)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to look up user: %w", err)
		}

		var linkedSub sql.NullString
		err = tx.QueryRowContext(ctx,
			"SELECT id, google_sub FROM users WHERE email = ?", p.Email).Scan(&id, &linkedSub)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = uuid.NewString()
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, email, name, picture, google_sub, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, p.Email, p.Name, p.Picture, p.Subject, now, now)
			if err != nil {
				return fmt.Errorf("failed to insert user: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up user: %w", err)
		}

		if linkedSub.String != "" {
			return fmt.Errorf("%w: email %s is linked to another Google account", ErrUserConflict, p.Email)
		}
		if !p.EmailVerified {
			return fmt.Errorf("%w: email %s is not verified", ErrUserConflict, p.Email)
		}
		return updateGoogleUser(ctx, tx, id, p, now)
	})
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, id)
}

func updateGoogleUser(ctx context.Context, tx *sql.Tx, id string, p GoogleProfile, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET email = ?, name = ?, picture = ?, google_sub = ?, updated_at = ? WHERE id = ?`,
		p.Email, p.Name, p.Picture, p.Subject, now, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id or ErrUserNotFound.
func (s *SQLiteUserStorage) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		u             User
		name, picture sql.NullString
		googleSub     sql.NullString
	)
	err := s.sqlite.DB.QueryRowContext(ctx,
		`SELECT id, email, name, picture, google_sub, created_at, updated_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &name, &picture, &googleSub, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Name = name.String
	u.Picture = picture.String
	u.GoogleSub = googleSub.String
	return &u, nil
}
