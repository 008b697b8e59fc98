package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines user persistence operations
type Repository interface {
	// Create returns ErrDuplicateEmail when the address is taken
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail returns ErrUserNotFound when no user has the address
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// ErrUserNotFound indicates a missing user
type ErrUserNotFound struct {
	Key string
}

func (e ErrUserNotFound) Error() string {
	return "user not found: " + e.Key
}

func (e ErrUserNotFound) Is(target error) bool {
	_, ok := target.(ErrUserNotFound)
	return ok
}

// ErrDuplicateEmail indicates email uniqueness violation
type ErrDuplicateEmail struct {
	Email string
}

func (e ErrDuplicateEmail) Error() string {
	return "user with email already exists: " + e.Email
}
