// Package pkce implements Proof Key for Code Exchange checks (RFC 7636).
package pkce

import (
	"crypto/subtle"
	"regexp"

	"golang.org/x/oauth2"

	"github.com/dtroode/authz-server/internal/model"
)

// verifierPattern is the RFC 7636 §4.1 code_verifier grammar.
var verifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// challengePattern matches a base64url-encoded SHA-256 digest without padding.
var challengePattern = regexp.MustCompile(`^[A-Za-z0-9\-_]{43}$`)

// Verify reports whether verifier proves possession of challenge under method.
// Only S256 is accepted.
func Verify(challenge, method, verifier string) bool {
	if method != model.PKCEMethodS256 {
		return false
	}
	if !ValidVerifier(verifier) || !ValidChallenge(challenge) {
		return false
	}

	computed := oauth2.S256ChallengeFromVerifier(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// ValidVerifier checks the code_verifier syntax.
func ValidVerifier(verifier string) bool {
	return verifierPattern.MatchString(verifier)
}

// ValidChallenge checks the code_challenge syntax for S256.
func ValidChallenge(challenge string) bool {
	return challengePattern.MatchString(challenge)
}

// NewPair generates a random verifier and its S256 challenge.
func NewPair() (verifier, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}
