package identity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// BeginRegistration validates the signup request, stages the account data
// inside a registration OTP record, and mails the code. No account exists
// until the code or link is verified; the staged snapshot is the only copy
// of the signup data.
func (e *Engine) BeginRegistration(ctx context.Context, req RegistrationRequest) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if req.Username == "" || req.Password == "" {
		return ErrValidation
	}

	if err := e.checkAvailable(ctx, req.Username, email); err != nil {
		return err
	}

	passwordHash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	pending := &PendingUser{
		Username:     req.Username,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}

	issue, err := e.CreateOTP(ctx, email, OTPRegistration, pending)
	if err != nil {
		return err
	}

	return e.sendOTPMail(ctx, email, OTPRegistration, issue)
}

// ResendOTP re-issues the code for an in-flight flow. The prior code and
// link stop working immediately; for registration the staged snapshot is
// carried forward into the replacement record.
func (e *Engine) ResendOTP(ctx context.Context, email string, otpType OTPType) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	issue, err := e.CreateOTP(ctx, email, otpType, nil)
	if err != nil {
		return err
	}
	return e.sendOTPMail(ctx, email, otpType, issue)
}

// CompleteRegistration consumes the registration OTP with a user-typed
// code, creates the account from the staged snapshot, and signs the new
// user in with a fresh token pair.
//
// When the record is already gone, the account may have been created a
// moment ago by the other verification channel (code vs. link). That case
// is detected by re-checking the directory and reported as an idempotent
// success rather than an error.
func (e *Engine) CompleteRegistration(ctx context.Context, email, code string) (*Account, *TokenPair, error) {
	return e.completeRegistration(ctx, email, code, false)
}

// CompleteRegistrationByLink is CompleteRegistration for the emailed
// verification link.
func (e *Engine) CompleteRegistrationByLink(ctx context.Context, email, verificationToken string) (*Account, *TokenPair, error) {
	return e.completeRegistration(ctx, email, verificationToken, true)
}

func (e *Engine) completeRegistration(ctx context.Context, email, secret string, byToken bool) (*Account, *TokenPair, error) {
	result, err := e.verify(ctx, email, secret, OTPRegistration, byToken)
	if err != nil {
		if errors.Is(err, ErrOTPNotFoundOrExpired) {
			if account, ok := e.lookupExisting(ctx, email); ok {
				return e.signIn(account)
			}
		}
		return nil, nil, err
	}

	if result.PendingUser == nil {
		return nil, nil, ErrRegistrationDataExpired
	}

	account, err := e.directory.Create(ctx, NewAccount{
		Username:     result.PendingUser.Username,
		Email:        result.PendingUser.Email,
		PasswordHash: result.PendingUser.PasswordHash,
		FirstName:    result.PendingUser.FirstName,
		LastName:     result.PendingUser.LastName,
	})
	if err != nil {
		// Lost the creation race to a concurrent verifier; same idempotent
		// outcome as losing the consume race.
		if errors.Is(err, ErrAccountExists) {
			if existing, ok := e.lookupExisting(ctx, email); ok {
				return e.signIn(existing)
			}
		}
		return nil, nil, err
	}

	return e.signIn(account)
}

func (e *Engine) checkAvailable(ctx context.Context, username, email string) error {
	if _, err := e.directory.FindByUsername(ctx, username); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	if _, err := e.directory.FindByEmail(ctx, email); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return nil
}

func (e *Engine) lookupExisting(ctx context.Context, email string) (*Account, bool) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, false
	}
	account, err := e.directory.FindByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			e.log.Warn("directory lookup after lost otp race failed",
				zap.Error(err),
			)
		}
		return nil, false
	}
	return account, true
}

func (e *Engine) signIn(account *Account) (*Account, *TokenPair, error) {
	pair, err := e.IssueTokens(account.ID)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}
