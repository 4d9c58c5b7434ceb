package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, in Input) (*User, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:          uuid.New(),
		Name:        in.Name,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		CreatedAt:   time.Now().UTC(),
	}

	query := `INSERT INTO users (id, name, email, phone_number, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = r.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, nullString(user.PhoneNumber), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	return user, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT id, name, email, COALESCE(phone_number, ''), created_at FROM users WHERE id = $1`

	var user User
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PhoneNumber,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetMany(ctx context.Context, ids []uuid.UUID) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	query := `SELECT id, name, email, COALESCE(phone_number, ''), created_at FROM users WHERE id = ANY($1::uuid[])`
	return r.query(ctx, query, pq.Array(keys))
}

func (r *repository) List(ctx context.Context) ([]User, error) {
	query := `SELECT id, name, email, COALESCE(phone_number, ''), created_at FROM users ORDER BY created_at ASC`
	return r.query(ctx, query)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PhoneNumber, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, in Input) (*User, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	query := `UPDATE users SET name = $1, email = $2, phone_number = $3 WHERE id = $4 RETURNING created_at`

	user := User{ID: id, Name: in.Name, Email: in.Email, PhoneNumber: in.PhoneNumber}
	err = r.db.QueryRowContext(ctx, query, in.Name, in.Email, nullString(in.PhoneNumber), id).Scan(&user.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrNotFound
		case isUniqueViolation(err):
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("updating user: %w", err)
	}

	return &user, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
