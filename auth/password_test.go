package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	req := require.New(t)

	encoded, err := HashPassword("correct horse battery staple")
	req.NoError(err)
	req.True(strings.HasPrefix(encoded, "$argon2id$"))

	// The right password verifies, the wrong one does not
	ok, err := VerifyPassword("correct horse battery staple", encoded)
	req.NoError(err)
	req.True(ok)

	ok, err = VerifyPassword("incorrect horse", encoded)
	req.NoError(err)
	req.False(ok)
}

func TestHashPassword_SaltVaries(t *testing.T) {
	req := require.New(t)

	first, err := HashPassword("same password")
	req.NoError(err)
	second, err := HashPassword("same password")
	req.NoError(err)

	// Two hashes of the same password never collide
	req.NotEqual(first, second)
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	req := require.New(t)

	cases := []string{
		"",
		"plainly-not-a-hash",
		"$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$%%%$aGFzaA",
	}
	for _, encoded := range cases {
		_, err := VerifyPassword("whatever", encoded)
		req.ErrorIs(err, ErrMalformedHash)
	}
}
