package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Invitation records an interview invitation sent to a participant.
type Invitation struct {
	ID          string     `json:"id"`
	InterviewID string     `json:"interview_id"`
	Email       string     `json:"email"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SQLiteInvitationStorage persists invitations.
type SQLiteInvitationStorage struct {
	sqlite *SQLite
}

// NewSQLiteInvitationStorage creates an invitation storage backed by sqlite.
func NewSQLiteInvitationStorage(sqlite *SQLite) *SQLiteInvitationStorage {
	return &SQLiteInvitationStorage{sqlite: sqlite}
}

// CreateInvitation inserts a pending invitation.
func (s *SQLiteInvitationStorage) CreateInvitation(ctx context.Context, interviewID, email string) (*Invitation, error) {
	inv := &Invitation{
		ID:          uuid.NewString(),
		InterviewID: interviewID,
		Email:       email,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.sqlite.DB.ExecContext(ctx,
		`INSERT INTO invitations (id, interview_id, email, created_at) VALUES (?, ?, ?, ?)`,
		inv.ID, inv.InterviewID, inv.Email, inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return inv, nil
}

// MarkSent stamps the invitation as delivered.
func (s *SQLiteInvitationStorage) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := s.sqlite.DB.ExecContext(ctx, `UPDATE invitations SET sent_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark invitation sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// GetInvitation returns the invitation with the given id or ErrInvitationNotFound.
func (s *SQLiteInvitationStorage) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	var (
		inv    Invitation
		sentAt sql.NullTime
	)
	err := s.sqlite.DB.QueryRowContext(ctx,
		`SELECT id, interview_id, email, sent_at, created_at FROM invitations WHERE id = ?`, id).
		Scan(&inv.ID, &inv.InterviewID, &inv.Email, &sentAt, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	if sentAt.Valid {
		inv.SentAt = &sentAt.Time
	}
	return &inv, nil
}
