package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeECKey(t *testing.T, dir, name string) (string, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))
	return path, key
}

func TestLoad_CurrentAndPrevious(t *testing.T) {
	dir := t.TempDir()
	currentPath, current := writeECKey(t, dir, "current.pem")
	previousPath, previous := writeECKey(t, dir, "previous.pem")

	ring, err := Load(currentPath, previousPath)
	require.NoError(t, err)

	assert.True(t, ring.SigningKey().Signer.(*ecdsa.PrivateKey).Equal(current))
	keys := ring.VerificationKeys()
	require.Len(t, keys, 2)
	assert.True(t, keys[1].Signer.(*ecdsa.PrivateKey).Equal(previous))
	assert.Equal(t, "ES256", keys[0].Algorithm)
	assert.NotEqual(t, keys[0].ID, keys[1].ID)
}

func TestLoad_GeneratesWhenUnset(t *testing.T) {
	ring, err := Load("", "")
	require.NoError(t, err)

	assert.Len(t, ring.VerificationKeys(), 1)
	assert.Equal(t, "ES256", ring.SigningKey().Algorithm)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))

	_, err := Load(filepath.Join(dir, "missing.pem"), "")
	require.Error(t, err)

	_, err = Load(garbage, "")
	require.Error(t, err)

	current, _ := writeECKey(t, dir, "current.pem")
	_, err = Load(current, garbage)
	require.Error(t, err)
}

func TestRing_Rotate(t *testing.T) {
	first, err := Generate()
	require.NoError(t, err)
	ring, err := NewRing(first)
	require.NoError(t, err)
	firstID := ring.SigningKey().ID

	second, err := Generate()
	require.NoError(t, err)
	require.NoError(t, ring.Rotate(second))

	assert.NotEqual(t, firstID, ring.SigningKey().ID)
	_, ok := ring.Lookup(firstID)
	assert.True(t, ok, "previous key must keep verifying")

	third, err := Generate()
	require.NoError(t, err)
	require.NoError(t, ring.Rotate(third))

	_, ok = ring.Lookup(firstID)
	assert.False(t, ok, "key two rotations old must be dropped")
	assert.Len(t, ring.VerificationKeys(), 2)
}

func TestRing_JWKS(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ring, err := NewRing(rsaKey)
	require.NoError(t, err)

	ec, err := Generate()
	require.NoError(t, err)
	require.NoError(t, ring.Rotate(ec))

	set := ring.JWKS()
	require.Len(t, set.Keys, 2)
	for _, k := range set.Keys {
		assert.True(t, k.IsPublic())
		assert.Equal(t, "sig", k.Use)
	}
	assert.ElementsMatch(t, []string{"ES256", "RS256"}, ring.Algorithms())

	raw, err := json.Marshal(set)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"d"`)
}

func TestKeyID_Stable(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	a, err := KeyID(key)
	require.NoError(t, err)
	b, err := KeyID(key)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
