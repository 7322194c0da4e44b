package services

import (
	"chat-relay/auth"
	apperrors "chat-relay/errors"
	"chat-relay/repositories"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

const strongPassword = "Str0ngPassw0rd!"

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	issuer := auth.NewTokenIssuer("test-secret-do-not-reuse", time.Hour)
	return NewAuthService(repositories.NewUserRepository(db), issuer)
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	req := require.New(t)
	service := newAuthService(t)

	// When a user registers
	userID, err := service.Register(auth.RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: strongPassword,
	})
	req.NoError(err)
	req.NotEmpty(userID)

	// Then logging in with the same credentials yields a valid token
	token, err := service.Login(auth.LoginRequest{
		Email:    "alice@example.com",
		Password: strongPassword,
	})
	req.NoError(err)

	claims, err := auth.NewTokenIssuer("test-secret-do-not-reuse", time.Hour).Validate(token)
	req.NoError(err)
	req.Equal(userID, claims.UserID)
	req.Equal("Alice", claims.UserName)
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	req := require.New(t)
	service := newAuthService(t)

	cases := []struct {
		name     string
		password string
	}{
		{name: "too short", password: "Sh0rt!"},
		{name: "no upper", password: "weakpassw0rd!!!"},
		{name: "no number", password: "WeakPassword!!!"},
		{name: "no special", password: "WeakPassw0rd123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Register(auth.RegisterRequest{
				Email:    "alice@example.com",
				Name:     "Alice",
				Password: tc.password,
			})
			req.Error(err)
		})
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	req := require.New(t)
	service := newAuthService(t)

	_, err := service.Register(auth.RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: strongPassword,
	})
	req.NoError(err)

	_, err = service.Register(auth.RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Not Alice",
		Password: strongPassword,
	})
	req.ErrorIs(err, apperrors.ErrUserAlreadyExists)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	req := require.New(t)
	service := newAuthService(t)

	_, err := service.Register(auth.RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Alice",
		Password: strongPassword,
	})
	req.NoError(err)

	_, err = service.Login(auth.LoginRequest{
		Email:    "alice@example.com",
		Password: "Wr0ngPassword!!",
	})
	req.ErrorIs(err, apperrors.ErrInvalidCredential)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	req := require.New(t)
	service := newAuthService(t)

	// An unknown email and a wrong password are indistinguishable
	_, err := service.Login(auth.LoginRequest{
		Email:    "nobody@example.com",
		Password: strongPassword,
	})
	req.ErrorIs(err, apperrors.ErrInvalidCredential)
}
