package identity

import (
	"bytes"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mydrive/identity/password"
)

// Config is the explicit, injected configuration for [New]. Nothing in this
// package reads ambient environment state; secrets and TTLs arrive here or
// not at all. Instances are treated as immutable after New returns.
type Config struct {
	OTP      OTPConfig
	Token    TokenConfig
	Password password.Config

	// VerifyLinkBase, when set, is the URL prefix the engine appends
	// email, token, and type query parameters to when building the
	// verification deep link for outgoing mail. Empty disables links.
	VerifyLinkBase string

	// RedisPrefix namespaces every key this engine writes. Defaults to "idv".
	RedisPrefix string

	// Logger receives structured warnings (mail failures, revocation write
	// failures). Defaults to a no-op logger.
	Logger *zap.Logger
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig governs one-time-passcode records.
type OTPConfig struct {
	// CodeTTL is the window a code and its verification token stay usable.
	// Default 5 minutes.
	CodeTTL time.Duration
	// CodeLength is the number of characters drawn from the 36-symbol
	// alphabet. Default 6.
	CodeLength int
	// MaxAttempts is the failed-attempt budget before lockout. Default 5.
	MaxAttempts int
	// LockoutDuration is how long a locked record refuses all attempts,
	// correct ones included. Default 15 minutes.
	LockoutDuration time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig governs signed credential issuance. Access and refresh tokens
// use different signing secrets so a token issued as one type can never
// verify as the other, even if one secret leaks.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	// AccessTTL defaults to 1 hour.
	AccessTTL time.Duration
	// RefreshTTL defaults to 30 days.
	RefreshTTL time.Duration
	Issuer     string
	// Leeway tolerates clock skew during validation. Default 0, max 2 minutes.
	Leeway time.Duration
}

func (c *Config) applyDefaults() {
	if c.OTP.CodeTTL == 0 {
		c.OTP.CodeTTL = 5 * time.Minute
	}
	if c.OTP.CodeLength == 0 {
		c.OTP.CodeLength = 6
	}
	if c.OTP.MaxAttempts == 0 {
		c.OTP.MaxAttempts = 5
	}
	if c.OTP.LockoutDuration == 0 {
		c.OTP.LockoutDuration = 15 * time.Minute
	}
	if c.Token.AccessTTL == 0 {
		c.Token.AccessTTL = time.Hour
	}
	if c.Token.RefreshTTL == 0 {
		c.Token.RefreshTTL = 30 * 24 * time.Hour
	}
	if c.RedisPrefix == "" {
		c.RedisPrefix = "idv"
	}
	if c.Password == (password.Config{}) {
		c.Password = password.DefaultConfig()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

func (c *Config) validate() error {
	if c.OTP.CodeTTL < time.Minute {
		return errors.New("otp code ttl must be >= 1 minute")
	}
	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 10 {
		return errors.New("otp code length must be between 4 and 10")
	}
	if c.OTP.MaxAttempts < 1 {
		return errors.New("otp max attempts must be >= 1")
	}
	if c.OTP.LockoutDuration < time.Minute {
		return errors.New("otp lockout duration must be >= 1 minute")
	}
	if len(c.Token.AccessSecret) < 32 {
		return errors.New("access token secret must be >= 32 bytes")
	}
	if len(c.Token.RefreshSecret) < 32 {
		return errors.New("refresh token secret must be >= 32 bytes")
	}
	if bytes.Equal(c.Token.AccessSecret, c.Token.RefreshSecret) {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token ttls must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access ttl must be shorter than refresh ttl")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("token leeway must be between 0 and 2 minutes")
	}
	return nil
}
