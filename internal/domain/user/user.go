package user

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Common errors
var (
	ErrEmptyEmail        = errors.New("email cannot be empty")
	ErrEmptyPassword     = errors.New("password cannot be empty")
	ErrEmptyDisplayName  = errors.New("display name cannot be empty")
	ErrInvalidCredential = errors.New("invalid email or password")
	ErrPasswordTooLong   = fmt.Errorf("password cannot be longer than %d bytes", MaxPasswordBytes)
)

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

// PasswordCost is the bcrypt cost used for new hashes.
var PasswordCost = bcrypt.DefaultCost

// User is a person who can sign in and own trade sessions
type User struct {
	ID           uuid.UUID `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	DisplayName  string    `json:"display_name" bson:"display_name"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// NewUser validates sign-up input and hashes the password
func NewUser(email, password, displayName string) (*User, error) {
	email = NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if email == "" {
		return nil, ErrEmptyEmail
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	if displayName == "" {
		return nil, ErrEmptyDisplayName
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// CheckPassword returns ErrInvalidCredential when password does not match
func (u *User) CheckPassword(password string) error {
	// No stored hash can match a password bcrypt refuses to hash.
	if len(password) > MaxPasswordBytes {
		return ErrInvalidCredential
	}
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredential
		}
		return fmt.Errorf("failed to check password: %w", err)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address so lookups are stable
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
