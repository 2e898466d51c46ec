package jwtauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultClockSkew is the tolerance applied to exp and iat
const DefaultClockSkew = 60 * time.Second

// DefaultAuthoritiesClaim is the claim Spring-style authorization servers use for granted roles
const DefaultAuthoritiesClaim = "authorities"

// Standard and well-known claim names
const (
	ClaimSubject   = "sub"
	ClaimUserName  = "user_name"
	ClaimExpiresAt = "exp"
	ClaimIssuedAt  = "iat"
	ClaimIssuer    = "iss"
	ClaimAudience  = "aud"
	ClaimScope     = "scope"
	ClaimClientID  = "client_id"
	ClaimTokenID   = "jti"
)

// VerifiedClaims is the typed view of a verified token
type VerifiedClaims struct {
	Subject     string
	Authorities []string
	Scopes      []string
	ClientID    string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// ExtractorConfig holds claim validation settings
type ExtractorConfig struct {
	ClockSkew        time.Duration // zero means no tolerance
	AuthoritiesClaim string
	Issuer           string // checked when set
	Audience         string // checked when set
}

// Extractor validates a Payload's claims and builds VerifiedClaims.
type Extractor struct {
	cfg ExtractorConfig
	now func() time.Time
}

// ExtractorOption customizes an Extractor
type ExtractorOption func(*Extractor)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

// NewExtractor creates a new Extractor
func NewExtractor(cfg ExtractorConfig, opts ...ExtractorOption) *Extractor {
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}
	if cfg.AuthoritiesClaim == "" {
		cfg.AuthoritiesClaim = DefaultAuthoritiesClaim
	}

	e := &Extractor{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract validates the required claims of p and returns them typed.
func (e *Extractor) Extract(p Payload) (*VerifiedClaims, error) {
	now := e.now()
	skew := e.cfg.ClockSkew

	subject, err := subjectOf(p)
	if err != nil {
		return nil, err
	}

	expiresAt, err := requiredTime(p, ClaimExpiresAt)
	if err != nil {
		return nil, err
	}
	issuedAt, err := requiredTime(p, ClaimIssuedAt)
	if err != nil {
		return nil, err
	}

	if expiresAt.Add(skew).Before(now) {
		return nil, newError(KindExpiredToken, fmt.Errorf("expired at %s", expiresAt.UTC().Format(time.RFC3339)))
	}
	if issuedAt.After(now.Add(skew)) {
		return nil, claimError(KindInvalidClaim, ClaimIssuedAt, errors.New("issued in the future"))
	}

	if e.cfg.Issuer != "" {
		raw, _ := p.Claim(ClaimIssuer)
		iss, _ := raw.(string)
		if iss != e.cfg.Issuer {
			return nil, claimError(KindInvalidClaim, ClaimIssuer, fmt.Errorf("unexpected issuer %q", iss))
		}
	}
	if e.cfg.Audience != "" {
		aud, err := stringSet(p, ClaimAudience)
		if err != nil {
			return nil, err
		}
		if !contains(aud, e.cfg.Audience) {
			return nil, claimError(KindInvalidClaim, ClaimAudience, errors.New("audience not accepted"))
		}
	}

	authorities, err := stringSet(p, e.cfg.AuthoritiesClaim)
	if err != nil {
		return nil, err
	}
	scopes, err := stringSet(p, ClaimScope)
	if err != nil {
		return nil, err
	}
	clientID, err := optionalString(p, ClaimClientID)
	if err != nil {
		return nil, err
	}
	tokenID, err := optionalString(p, ClaimTokenID)
	if err != nil {
		return nil, err
	}

	return &VerifiedClaims{
		Subject:     subject,
		Authorities: authorities,
		Scopes:      scopes,
		ClientID:    clientID,
		TokenID:     tokenID,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}, nil
}

// subjectOf reads sub, falling back to user_name for tokens minted by
// Spring OAuth2 JWT converters.
func subjectOf(p Payload) (string, error) {
	name := ClaimSubject
	raw, ok := p.Claim(ClaimSubject)
	if !ok {
		name = ClaimUserName
		raw, ok = p.Claim(ClaimUserName)
	}
	if !ok || raw == nil {
		return "", claimError(KindMissingRequiredClaim, ClaimSubject, nil)
	}

	s, ok := raw.(string)
	if !ok {
		return "", claimError(KindInvalidClaim, name, errors.New("must be a string"))
	}
	if strings.TrimSpace(s) == "" {
		return "", claimError(KindMissingRequiredClaim, name, nil)
	}
	return s, nil
}

func requiredTime(p Payload, name string) (time.Time, error) {
	raw, ok := p.Claim(name)
	if !ok || raw == nil {
		return time.Time{}, claimError(KindMissingRequiredClaim, name, nil)
	}

	var secs float64
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, claimError(KindInvalidClaim, name, err)
		}
		secs = f
	case float64:
		secs = v
	case int64:
		secs = float64(v)
	case int:
		secs = float64(v)
	default:
		return time.Time{}, claimError(KindInvalidClaim, name, errors.New("must be a numeric date"))
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, claimError(KindInvalidClaim, name, errors.New("must be a finite number"))
	}

	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*1e9)), nil
}

func optionalString(p Payload, name string) (string, error) {
	raw, ok := p.Claim(name)
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", claimError(KindInvalidClaim, name, errors.New("must be a string"))
	}
	return s, nil
}

// stringSet accepts a JSON array of strings or a space-separated string.
// Absence yields an empty, non-nil set. Order is kept, duplicates dropped.
func stringSet(p Payload, name string) ([]string, error) {
	out := []string{}
	raw, ok := p.Claim(name)
	if !ok || raw == nil {
		return out, nil
	}

	var items []string
	switch v := raw.(type) {
	case string:
		items = strings.Fields(v)
	case []string:
		items = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, claimError(KindInvalidClaim, name, errors.New("must contain only strings"))
			}
			items = append(items, s)
		}
	default:
		return nil, claimError(KindInvalidClaim, name, errors.New("must be a string or an array of strings"))
	}

	seen := make(map[string]struct{}, len(items))
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
