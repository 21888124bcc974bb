package user

import (
	"context"
	"errors"
	"time"

	"github.com/MikeMC777/ordenes-checkout/internal/db"
)

var (
	ErrNotFound = errors.New("user not found")
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

type PGRepo struct{ db db.DBTX }

func NewPGRepo(q db.DBTX) *PGRepo { return &PGRepo{db: q} }

func (r *PGRepo) GetByID(ctx context.Context, id string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := r.db.QueryRow(ctx, `
		SELECT id, username, email, COALESCE(phone, ''), email_verified_at, COALESCE(dob::text, ''), created_at
		FROM users WHERE id=$1
	`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.EmailVerifiedAt, &u.DateOfBirth, &u.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
