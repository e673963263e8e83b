package repository

import (
	"context"
	"database/sql"

	"github.com/IstFranco/utn-events/internal/model"
)

// UserRepo reads user profiles.  Accounts are created by the identity
// provider, so the only write is the profile age.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	return getUser(ctx, r.DB, id)
}

func getUser(ctx context.Context, q queryer, id uint64) (*model.User, error) {
	var u model.User
	var age sql.NullInt64
	err := q.QueryRowContext(ctx,
		"SELECT id,email,display_name,age,created_at,updated_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Email, &u.DisplayName, &age, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.Age = uint32Ptr(age)
	return &u, nil
}

// UpdateUserAge sets the profile age.
func (r *UserRepo) UpdateUserAge(ctx context.Context, id uint64, age uint32) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET age=? WHERE id=?", age, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// unchanged value or missing row
		_, err := r.GetUser(ctx, id)
		return err
	}
	return nil
}
