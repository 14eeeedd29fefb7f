// Package keys supplies the asymmetric signing keys used for issued tokens.
// It holds the active key and, during rotation, the immediately previous key
// so that tokens signed before a cutover keep verifying.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"sync"

	"github.com/go-jose/go-jose/v4"
)

// Key is a private signing key with its identifier and JWS algorithm.
type Key struct {
	ID        string
	Algorithm string
	Signer    crypto.Signer
}

// Public returns the public half of the key.
func (k Key) Public() crypto.PublicKey {
	return k.Signer.Public()
}

// Provider exposes the current signing key and every key still valid for verification.
type Provider interface {
	SigningKey() Key
	VerificationKeys() []Key
	Lookup(kid string) (Key, bool)
}

var _ Provider = (*Ring)(nil)

// Ring holds the current key and at most one previous key.
type Ring struct {
	mu       sync.RWMutex
	current  Key
	previous *Key
}

// NewRing creates a ring with current as the signing key.
func NewRing(current crypto.Signer) (*Ring, error) {
	k, err := NewKey(current)
	if err != nil {
		return nil, err
	}
	return &Ring{current: k}, nil
}

// NewKey derives the key ID and algorithm of signer.
func NewKey(signer crypto.Signer) (Key, error) {
	alg, err := Algorithm(signer)
	if err != nil {
		return Key{}, err
	}
	kid, err := KeyID(signer)
	if err != nil {
		return Key{}, err
	}
	return Key{ID: kid, Algorithm: alg, Signer: signer}, nil
}

// Load builds a ring from PEM files. previousPath may be empty.
// When currentPath is empty an ephemeral P-256 key is generated.
func Load(currentPath, previousPath string) (*Ring, error) {
	var (
		current crypto.Signer
		err     error
	)
	if currentPath == "" {
		current, err = Generate()
	} else {
		current, err = LoadSigningKey(currentPath)
	}
	if err != nil {
		return nil, err
	}

	ring, err := NewRing(current)
	if err != nil {
		return nil, err
	}

	if previousPath != "" {
		prev, err := LoadSigningKey(previousPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load previous key: %w", err)
		}
		pk, err := NewKey(prev)
		if err != nil {
			return nil, err
		}
		ring.previous = &pk
	}

	return ring, nil
}

// SigningKey returns the active key.
func (r *Ring) SigningKey() Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// VerificationKeys returns the current key followed by the previous one, if any.
func (r *Ring) VerificationKeys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := []Key{r.current}
	if r.previous != nil {
		keys = append(keys, *r.previous)
	}
	return keys
}

// Lookup finds a verification key by ID.
func (r *Ring) Lookup(kid string) (Key, bool) {
	for _, k := range r.VerificationKeys() {
		if k.ID == kid {
			return k, true
		}
	}
	return Key{}, false
}

// Rotate makes next the signing key and demotes the current key to previous.
// The old previous key stops verifying.
func (r *Ring) Rotate(next crypto.Signer) error {
	k, err := NewKey(next)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current
	r.current = k
	r.previous = &prev
	return nil
}

// JWKS returns the public verification keys as a JSON Web Key Set.
func (r *Ring) JWKS() jose.JSONWebKeySet {
	keys := r.VerificationKeys()
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.Public(),
			KeyID:     k.ID,
			Algorithm: k.Algorithm,
			Use:       "sig",
		})
	}
	return set
}

// Algorithms lists the distinct signing algorithms of the verification keys.
func (r *Ring) Algorithms() []string {
	var algs []string
	seen := make(map[string]bool)
	for _, k := range r.VerificationKeys() {
		if !seen[k.Algorithm] {
			seen[k.Algorithm] = true
			algs = append(algs, k.Algorithm)
		}
	}
	return algs
}

// Generate creates a new P-256 key.
func Generate() (crypto.Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return key, nil
}

// LoadSigningKey reads a PEM encoded RSA or ECDSA private key.
func LoadSigningKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return ParseSigningKey(data)
}

// ParseSigningKey decodes a PEM block in PKCS1, SEC1 or PKCS8 form.
func ParseSigningKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from signing key")
	}

	if rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return rsaKey, nil
	}
	if ecKey, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return ecKey, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("signing key does not implement crypto.Signer")
	}
	return signer, nil
}

// KeyID computes the RFC 7638 thumbprint of the public key.
func KeyID(key crypto.Signer) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// Algorithm returns the JWS algorithm matching the key type.
func Algorithm(key crypto.Signer) (string, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return "RS256", nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return "ES256", nil
		case elliptic.P384():
			return "ES384", nil
		case elliptic.P521():
			return "ES512", nil
		}
		return "", fmt.Errorf("unsupported EC curve: %s", k.Curve.Params().Name)
	default:
		return "", fmt.Errorf("unsupported key type: %T", key)
	}
}
