package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_RFC7636Vector(t *testing.T) {
	t.Parallel()

	// RFC 7636 Appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	assert.True(t, Verify(challenge, "S256", verifier))
	assert.False(t, Verify(challenge, "plain", verifier))
	assert.False(t, Verify(verifier, "plain", verifier))
	assert.False(t, Verify(challenge, "", verifier))
}

func TestVerify_MatchesDefinition(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		verifier, challenge := NewPair()

		sum := sha256.Sum256([]byte(verifier))
		require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)
		assert.True(t, Verify(challenge, "S256", verifier))
	}
}

func TestVerify_SingleBitMutation(t *testing.T) {
	t.Parallel()

	verifier, challenge := NewPair()

	for i := range len(verifier) {
		for bit := 0; bit < 8; bit++ {
			b := []byte(verifier)
			b[i] ^= 1 << bit
			assert.False(t, Verify(challenge, "S256", string(b)), "position %d bit %d", i, bit)
		}
	}
}

func TestVerify_MalformedInput(t *testing.T) {
	t.Parallel()

	verifier, challenge := NewPair()

	tests := map[string]struct {
		challenge string
		verifier  string
	}{
		"short verifier":   {challenge: challenge, verifier: "abc"},
		"long verifier":    {challenge: challenge, verifier: strings.Repeat("a", 129)},
		"illegal chars":    {challenge: challenge, verifier: strings.Repeat("a", 42) + "+"},
		"empty verifier":   {challenge: challenge, verifier: ""},
		"empty challenge":  {challenge: "", verifier: verifier},
		"padded challenge": {challenge: challenge + "=", verifier: verifier},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.False(t, Verify(tt.challenge, "S256", tt.verifier))
		})
	}
}
