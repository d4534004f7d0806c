package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heartline/internal/database"
	"heartline/internal/models"
	"heartline/internal/repository"
)

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	return NewAuthService(repository.NewUserRepository(db), "test-secret-that-is-long-enough-123", time.Hour)
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Username: "Grace", Email: "grace@example.test", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "grace", user.Username)
	assert.Equal(t, "Grace", user.DisplayName)
	assert.NotEqual(t, "hunter22", user.Password)

	token, loggedIn, err := svc.Login(ctx, "grace", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return []byte("test-secret-that-is-long-enough-123"), nil
	})
	require.NoError(t, err)
	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatUint(uint64(user.ID), 10), sub)
}

func TestAuthService_LoginFailures(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Username: "grace", Email: "grace@example.test", Password: "hunter22"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "grace", "nope"},
		{"unknown user", "alan", "hunter22"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Login(ctx, tt.username, tt.password)
			assertAppErrorCode(t, err, models.CodeUnauthorized)
		})
	}
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc := newAuthService(t)

	_, err := svc.Register(context.Background(), RegisterInput{Username: " ", Password: "x"})
	assertAppErrorCode(t, err, models.CodeValidation)
}

func TestAuthService_IssueTokenRequiresSecret(t *testing.T) {
	svc := NewAuthService(nil, "", time.Hour)
	_, err := svc.IssueToken(&models.User{ID: 1})
	assert.Error(t, err)
}
