package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Generate("user-42", "Alice")
	req.NoError(err)

	claims, err := issuer.Validate(token)
	req.NoError(err)
	req.Equal("user-42", claims.UserID)
	req.Equal("Alice", claims.UserName)
	req.Equal("chat-relay", claims.Issuer)
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)
	other := NewTokenIssuer("another-secret", time.Hour)

	token, err := issuer.Generate("user-42", "Alice")
	req.NoError(err)

	_, err = other.Validate(token)
	req.Error(err)
}

func TestTokenIssuer_Expired(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Generate("user-42", "Alice")
	req.NoError(err)

	_, err = issuer.Validate(token)
	req.Error(err)
}

func TestTokenIssuer_Garbage(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("test-secret", time.Hour)

	_, err := issuer.Validate("not.a.token")
	req.Error(err)
}
