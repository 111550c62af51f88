package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mydrive/identity/internal"
	"github.com/mydrive/identity/internal/stores"
	"github.com/mydrive/identity/password"
	"github.com/mydrive/identity/token"
)

// Engine is the subsystem's public surface. All methods are safe for
// concurrent use once New returns; the engine holds no mutable state of its
// own, and the shared OTP and revocation records rely on Redis-side
// atomicity rather than in-process locking.
type Engine struct {
	config      Config
	otpStore    *stores.OTPStore
	revocations *stores.RevocationList
	tokens      *token.Manager
	hasher      *password.Hasher
	directory   UserDirectory
	mailer      Mailer
	log         *zap.Logger
}

// New wires an Engine against Redis and the caller's collaborators. cfg is
// defaulted and validated here; a returned Engine is fully usable.
func New(cfg Config, redisClient redis.UniversalClient, directory UserDirectory, mailer Mailer) (*Engine, error) {
	if redisClient == nil {
		return nil, errors.New("identity: redis client is required")
	}
	if directory == nil {
		return nil, errors.New("identity: user directory is required")
	}
	if mailer == nil {
		return nil, errors.New("identity: mailer is required")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  cfg.Token.AccessSecret,
		RefreshSecret: cfg.Token.RefreshSecret,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("identity: %w", err)
	}

	return &Engine{
		config:      cfg,
		otpStore:    stores.NewOTPStore(redisClient, cfg.RedisPrefix),
		revocations: stores.NewRevocationList(redisClient, cfg.RedisPrefix),
		tokens:      tokens,
		hasher:      hasher,
		directory:   directory,
		mailer:      mailer,
		log:         cfg.Logger,
	}, nil
}

func (e *Engine) ready() bool {
	return e != nil && e.otpStore != nil && e.revocations != nil &&
		e.tokens != nil && e.hasher != nil && e.directory != nil && e.mailer != nil
}

// CreateOTP stages a fresh one-time code for (email, otpType), atomically
// replacing any prior live record for the pair. For registration, a nil
// pending snapshot inherits the snapshot of the replaced record, so a
// resend never loses staged signup data. The returned plaintext code and
// verification token exist only in this return value; storage keeps digests.
func (e *Engine) CreateOTP(ctx context.Context, email string, otpType OTPType, pending *PendingUser) (*OTPIssue, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !otpType.valid() {
		return nil, ErrValidation
	}

	code, err := internal.NewOTPCode(e.config.OTP.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("identity: otp generation: %w", err)
	}
	verificationToken, err := internal.NewVerificationToken()
	if err != nil {
		return nil, fmt.Errorf("identity: token generation: %w", err)
	}

	expiresAt := time.Now().Add(e.config.OTP.CodeTTL)
	record := &stores.OTPRecord{
		Email:     email,
		Flow:      otpType.String(),
		CodeHash:  internal.HashSecret(code),
		TokenHash: internal.HashSecret(verificationToken),
		Pending:   stagedFromPending(pending),
		ExpiresAt: expiresAt.Unix(),
	}

	if err := e.otpStore.Create(ctx, record, e.config.OTP.CodeTTL); err != nil {
		return nil, mapStoreError(err)
	}

	return &OTPIssue{
		Code:              code,
		VerificationToken: verificationToken,
		ExpiresAt:         expiresAt,
	}, nil
}

// VerifyOTP checks a user-typed code against the live record for
// (email, otpType). Matching is case-insensitive and consumes the record;
// a mismatch spends one attempt from the budget.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string, otpType OTPType) (VerifyResult, error) {
	return e.verify(ctx, email, code, otpType, false)
}

// VerifyOTPByToken is VerifyOTP for the email-link flow: it matches the
// opaque verification token instead of the code. Lockout and one-time
// consumption semantics are identical.
func (e *Engine) VerifyOTPByToken(ctx context.Context, email, verificationToken string, otpType OTPType) (VerifyResult, error) {
	return e.verify(ctx, email, verificationToken, otpType, true)
}

func (e *Engine) verify(ctx context.Context, email, secret string, otpType OTPType, byToken bool) (VerifyResult, error) {
	if !e.ready() {
		return VerifyResult{}, ErrEngineNotReady
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return VerifyResult{}, err
	}
	if secret == "" {
		return VerifyResult{}, ErrValidation
	}
	if !otpType.valid() {
		return VerifyResult{}, ErrValidation
	}

	provided := secret
	if !byToken {
		provided = strings.ToUpper(secret)
	}

	outcome, err := e.otpStore.Consume(
		ctx,
		otpType.String(),
		email,
		internal.HashSecret(provided),
		byToken,
		e.config.OTP.MaxAttempts,
		e.config.OTP.LockoutDuration,
	)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrOTPNotFound):
			return VerifyResult{}, ErrOTPNotFoundOrExpired
		case errors.Is(err, stores.ErrOTPLocked):
			return VerifyResult{RetryAfter: outcome.RetryAfter}, ErrOTPLockedOut
		case errors.Is(err, stores.ErrOTPMismatch):
			return VerifyResult{RemainingAttempts: outcome.Remaining}, ErrOTPIncorrect
		default:
			return VerifyResult{}, mapStoreError(err)
		}
	}

	return VerifyResult{PendingUser: pendingFromStaged(outcome.Record.Pending)}, nil
}

func (e *Engine) sendOTPMail(ctx context.Context, email string, otpType OTPType, issue *OTPIssue) error {
	mail := OTPMail{
		Recipient:  email,
		Code:       issue.Code,
		Flow:       otpType,
		VerifyLink: e.verifyLink(email, otpType, issue.VerificationToken),
	}
	if err := e.mailer.SendOTP(ctx, mail); err != nil {
		e.log.Warn("otp mail delivery failed",
			zap.String("flow", otpType.String()),
			zap.Error(err),
		)
		return fmt.Errorf("identity: otp mail: %w", err)
	}
	return nil
}

func (e *Engine) verifyLink(email string, otpType OTPType, verificationToken string) string {
	if e.config.VerifyLinkBase == "" {
		return ""
	}
	q := url.Values{}
	q.Set("email", email)
	q.Set("token", verificationToken)
	q.Set("type", otpType.String())
	return e.config.VerifyLinkBase + "?" + q.Encode()
}

func stagedFromPending(p *PendingUser) *stores.StagedUser {
	if p == nil {
		return nil
	}
	return &stores.StagedUser{
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
	}
}

func pendingFromStaged(s *stores.StagedUser) *PendingUser {
	if s == nil {
		return nil
	}
	return &PendingUser{
		Username:     s.Username,
		Email:        s.Email,
		PasswordHash: s.PasswordHash,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
	}
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, stores.ErrOTPRedisUnavailable),
		errors.Is(err, stores.ErrRevocationRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrValidation
	}
	return email, nil
}
