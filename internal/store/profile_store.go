package store

import (
	"context"

	"github.com/dvvvvv411/meta-backend-sub001/internal/models"
)

type ProfileStore struct {
	db DB
}

func NewProfileStore(db DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) Create(ctx context.Context, tx Execer, id, email, passwordHash, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, email, password_hash, role, balance_eur)
		VALUES ($1, $2, $3, $4, 0)
	`, id, email, passwordHash, role)
	return err
}

func (s *ProfileStore) GetByID(ctx context.Context, userID string) (models.Profile, error) {
	var row models.Profile
	err := s.db.GetContext(ctx, &row, `
		SELECT id, email, password_hash, role, balance_eur, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, userID)
	if err != nil {
		return models.Profile{}, err
	}
	return row, nil
}

func (s *ProfileStore) GetByEmail(ctx context.Context, email string) (models.Profile, error) {
	var row models.Profile
	err := s.db.GetContext(ctx, &row, `
		SELECT id, email, password_hash, role, balance_eur, created_at, updated_at
		FROM profiles
		WHERE email = $1
	`, email)
	if err != nil {
		return models.Profile{}, err
	}
	return row, nil
}

// AdjustBalance applies a signed delta as a single atomic increment. The
// caller never reads the balance first; read-modify-write would reopen the
// double-credit window under concurrent webhook delivery.
func (s *ProfileStore) AdjustBalance(ctx context.Context, tx Execer, userID string, delta int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE profiles
		SET balance_eur = balance_eur + $1, updated_at = NOW()
		WHERE id = $2
	`, delta, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *ProfileStore) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var role string
	if err := s.db.GetContext(ctx, &role, `SELECT role FROM profiles WHERE id = $1`, userID); err != nil {
		return false, err
	}
	return role == "admin", nil
}
