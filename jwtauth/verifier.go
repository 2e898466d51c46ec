// Package jwtauth verifies signed bearer JWTs and turns their payload into
// typed claims for the gateway's access filter.
//
// Verification is local and CPU-bound: the signing key is loaded once at
// startup and held in a KeyStore that supports atomic rotation.
package jwtauth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Payload is the decoded claim set of a token whose signature checked out.
// Only Verifier.Verify produces a non-empty one.
type Payload struct {
	claims map[string]interface{}
}

// Claim returns the raw value of the named claim
func (p Payload) Claim(name string) (interface{}, bool) {
	v, ok := p.claims[name]
	return v, ok
}

// Verifier checks token structure, declared algorithm and signature.
type Verifier struct {
	keys *KeyStore
}

// NewVerifier creates a Verifier backed by keys
func NewVerifier(keys *KeyStore) *Verifier {
	return &Verifier{keys: keys}
}

// Verify validates tokenString against the current signing key and returns
// its payload. Time-based claims are not checked here; see Extractor.
func (v *Verifier) Verify(tokenString string) (Payload, error) {
	key := v.keys.Current()

	if !hasThreeSegments(tokenString) {
		return Payload{}, newError(KindMalformedToken, errors.New("token must have three non-empty segments"))
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{key.Algorithm()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithJSONNumber(),
		jwt.WithStrictDecoding(),
	)

	// Look at the header before the key is ever used: the token does not get
	// to pick how it is verified.
	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			return Payload{}, newError(KindUnsupportedAlgorithm, err)
		}
		return Payload{}, newError(KindMalformedToken, err)
	}
	if alg := unverified.Method.Alg(); alg != key.Algorithm() {
		return Payload{}, newError(KindUnsupportedAlgorithm, errors.New("token declares "+alg+", expected "+key.Algorithm()))
	}

	claims := jwt.MapClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return key.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return Payload{}, newError(KindMalformedToken, err)
		}
		return Payload{}, newError(KindInvalidSignature, err)
	}

	return Payload{claims: claims}, nil
}

func hasThreeSegments(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
