package jwtauth

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoSigningKey is returned when no key material was configured
	ErrNoSigningKey = errors.New("signing key is required")

	// ErrUnknownAlgorithm is returned for algorithm identifiers the gateway cannot verify
	ErrUnknownAlgorithm = errors.New("unknown signing algorithm")
)

// SupportedAlgorithms lists the JWS algorithms a SigningKey can be built for.
var SupportedAlgorithms = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
	"EdDSA",
}

// SigningKey is the verification key plus the one algorithm tokens must declare.
// It is immutable once built.
type SigningKey struct {
	method jwt.SigningMethod
	key    interface{}
}

// ParseSigningKey builds a SigningKey for alg. HMAC algorithms take the raw
// secret; asymmetric ones take a PEM public key or certificate.
func ParseSigningKey(alg string, material []byte) (*SigningKey, error) {
	material = bytes.TrimSpace(material)
	if len(material) == 0 {
		return nil, ErrNoSigningKey
	}

	method := jwt.GetSigningMethod(alg)
	if method == nil || method == jwt.SigningMethodNone {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}

	isPEM := bytes.HasPrefix(material, []byte("-----BEGIN"))

	var (
		key interface{}
		err error
	)
	switch method.(type) {
	case *jwt.SigningMethodHMAC:
		if isPEM {
			return nil, fmt.Errorf("%s expects a shared secret, got PEM key material", alg)
		}
		key = append([]byte(nil), material...)
	case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
		key, err = jwt.ParseRSAPublicKeyFromPEM(material)
	case *jwt.SigningMethodECDSA:
		key, err = jwt.ParseECPublicKeyFromPEM(material)
	case *jwt.SigningMethodEd25519:
		key, err = jwt.ParseEdPublicKeyFromPEM(material)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s public key: %w", alg, err)
	}

	return &SigningKey{method: method, key: key}, nil
}

// Algorithm returns the expected JWS "alg" value
func (k *SigningKey) Algorithm() string {
	return k.method.Alg()
}

// String never prints key material.
func (k *SigningKey) String() string {
	return fmt.Sprintf("SigningKey(%s, redacted)", k.method.Alg())
}

// GoString keeps %#v from dumping the secret.
func (k *SigningKey) GoString() string {
	return k.String()
}

// KeyStore holds the active SigningKey. Rotation swaps the whole value so
// concurrent verifications see either the old key or the new one.
type KeyStore struct {
	current atomic.Pointer[SigningKey]
}

// NewKeyStore creates a KeyStore holding key
func NewKeyStore(key *SigningKey) (*KeyStore, error) {
	if key == nil {
		return nil, ErrNoSigningKey
	}
	s := &KeyStore{}
	s.current.Store(key)
	return s, nil
}

// Current returns the active key
func (s *KeyStore) Current() *SigningKey {
	return s.current.Load()
}

// Rotate replaces the active key. The algorithm may change along with it.
func (s *KeyStore) Rotate(key *SigningKey) error {
	if key == nil {
		return ErrNoSigningKey
	}
	s.current.Store(key)
	return nil
}
