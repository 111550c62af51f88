// Package token mints and verifies the two credential types of the identity
// subsystem as signed, expiring JWTs. Access and refresh tokens are signed
// with different secrets and carry a "typ" claim, so a token issued as one
// type can never verify as the other even if an attacker controls one of
// the secrets.
package token

import (
	"bytes"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates the two credential types.
type Kind uint8

const (
	// Access is the short-lived per-request credential.
	Access Kind = iota
	// Refresh is the long-lived credential used solely to obtain new access
	// tokens.
	Refresh
)

// String returns the value embedded in the "typ" claim.
func (k Kind) String() string {
	switch k {
	case Access:
		return "access"
	case Refresh:
		return "refresh"
	default:
		return "unknown"
	}
}

func (k Kind) other() Kind {
	if k == Access {
		return Refresh
	}
	return Access
}

var (
	// ErrExpired reports a well-formed, correctly signed token past expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed reports a token that is structurally broken or carries a
	// bad signature.
	ErrMalformed = errors.New("malformed token")
	// ErrWrongType reports a valid token of the other kind presented where
	// this kind was expected.
	ErrWrongType = errors.New("wrong token type")
)

// Config holds the per-type secrets and lifetimes. Treated as immutable
// after NewManager.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Claims is the signed payload: subject, expiry, and the type discriminator.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager issues and parses typed tokens. Verification is pure CPU work and
// safe for unbounded concurrency.
type Manager struct {
	config Config
	now    func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("token secrets must be >= 32 bytes")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

func (m *Manager) secret(kind Kind) []byte {
	if kind == Refresh {
		return m.config.RefreshSecret
	}
	return m.config.AccessSecret
}

func (m *Manager) ttl(kind Kind) time.Duration {
	if kind == Refresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// Issue mints a token of the given kind for subject.
func (m *Manager) Issue(kind Kind, subject string) (string, error) {
	if subject == "" {
		return "", errors.New("empty token subject")
	}

	now := m.now()
	claims := Claims{
		TokenType: kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl(kind))),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret(kind))
}

// Parse verifies signature, expiry, and type for a token expected to be of
// the given kind, returning one of ErrExpired, ErrWrongType, ErrMalformed
// on failure.
func (m *Manager) Parse(kind Kind, raw string) (*Claims, error) {
	claims, err := m.parse(kind, raw, true)
	if err == nil {
		return claims, nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpired
	}
	return nil, m.classify(kind, err, raw)
}

// Decode verifies signature and type but tolerates expiry. The logout path
// uses it to read a refresh token's own expiry when recording revocation.
func (m *Manager) Decode(kind Kind, raw string) (*Claims, error) {
	claims, err := m.parse(kind, raw, false)
	if err != nil {
		return nil, m.classify(kind, err, raw)
	}
	return claims, nil
}

func (m *Manager) classify(kind Kind, err error, raw string) error {
	switch {
	case errors.Is(err, ErrWrongType):
		return ErrWrongType
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		// A signature failure here is what a valid token of the other kind
		// looks like, since each kind has its own secret. Reclassify so the
		// caller can distinguish misuse from garbage.
		if _, otherErr := m.parse(kind.other(), raw, false); otherErr == nil {
			return ErrWrongType
		}
		return ErrMalformed
	default:
		return ErrMalformed
	}
}

func (m *Manager) parse(kind Kind, raw string, validateClaims bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if !validateClaims {
		options = append(options, jwt.WithoutClaimsValidation())
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if validateClaims && m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret(kind), nil
	}, options...)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != kind.String() {
		return nil, ErrWrongType
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
