package user

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	PasswordCost = bcrypt.MinCost
}

func TestNewUser(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		before := time.Now().UTC()
		u, err := NewUser("  Ravi@Example.com ", "secret", " Ravi ")
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, u.ID)
		assert.Equal(t, "ravi@example.com", u.Email)
		assert.Equal(t, "Ravi", u.DisplayName)
		assert.NotEqual(t, "secret", u.PasswordHash)
		assert.WithinDuration(t, before, u.CreatedAt, time.Second)
	})

	t.Run("MissingFields", func(t *testing.T) {
		_, err := NewUser("", "secret", "Ravi")
		assert.ErrorIs(t, err, ErrEmptyEmail)

		_, err = NewUser("ravi@example.com", "", "Ravi")
		assert.ErrorIs(t, err, ErrEmptyPassword)

		_, err = NewUser("ravi@example.com", "secret", "  ")
		assert.ErrorIs(t, err, ErrEmptyDisplayName)
	})

	t.Run("PasswordLength", func(t *testing.T) {
		_, err := NewUser("ravi@example.com", strings.Repeat("a", MaxPasswordBytes), "Ravi")
		assert.NoError(t, err)

		_, err = NewUser("ravi@example.com", strings.Repeat("a", MaxPasswordBytes+1), "Ravi")
		assert.ErrorIs(t, err, ErrPasswordTooLong)

		// 25 three-byte runes: within 72 characters, over 72 bytes
		_, err = NewUser("ravi@example.com", strings.Repeat("म", 25), "Ravi")
		assert.ErrorIs(t, err, ErrPasswordTooLong)
	})
}

func TestUser_CheckPassword(t *testing.T) {
	u, err := NewUser("ravi@example.com", "secret", "Ravi")
	require.NoError(t, err)

	assert.NoError(t, u.CheckPassword("secret"))
	assert.ErrorIs(t, u.CheckPassword("wrong"), ErrInvalidCredential)
	assert.ErrorIs(t, u.CheckPassword(strings.Repeat("a", MaxPasswordBytes+1)), ErrInvalidCredential)
}

func TestErrUserNotFound(t *testing.T) {
	err := error(ErrUserNotFound{Key: "ravi@example.com"})
	assert.ErrorIs(t, err, ErrUserNotFound{})
	assert.Equal(t, "user not found: ravi@example.com", err.Error())
}
