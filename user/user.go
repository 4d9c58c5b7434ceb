package user

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrBlankName    = errors.New("name can't be blank")
	ErrInvalidEmail = errors.New("invalid email format")
	ErrEmailExists  = errors.New("email already exists")
)

type User struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Input holds the writable fields of a user.
type Input struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// Normalize trims the fields and validates them. Emails are compared
// case-insensitively, so they are stored lower case.
func (in Input) Normalize() (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	if in.Name == "" {
		return in, ErrBlankName
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return in, ErrInvalidEmail
	}
	return in, nil
}

type Repository interface {
	Create(ctx context.Context, in Input) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetMany returns the users that exist among ids, in no particular order.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
