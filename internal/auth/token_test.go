package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	caller := Caller{ID: uuid.New(), Role: RoleDoctor}

	raw, err := Sign("s3cret", caller, time.Hour)
	require.NoError(t, err)

	got, err := NewTokenVerifier("s3cret").Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, caller, got)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := Sign("s3cret", Caller{ID: uuid.New(), Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = NewTokenVerifier("other").Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	raw, err := Sign("s3cret", Caller{ID: uuid.New(), Role: RoleAdmin}, -time.Hour)
	require.NoError(t, err)

	_, err = NewTokenVerifier("s3cret").Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := token.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = NewTokenVerifier("s3cret").Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCanManageDoctor(t *testing.T) {
	doctor := uuid.New()

	assert.True(t, Caller{ID: doctor, Role: RoleDoctor}.CanManageDoctor(doctor))
	assert.False(t, Caller{ID: uuid.New(), Role: RoleDoctor}.CanManageDoctor(doctor))
	assert.True(t, Caller{ID: uuid.New(), Role: RoleAdmin}.CanManageDoctor(doctor))
	assert.False(t, Caller{ID: doctor, Role: RolePatient}.CanManageDoctor(doctor))
}
