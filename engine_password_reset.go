package identity

import (
	"context"
	"errors"
	"fmt"
)

// BeginPasswordReset issues a password-reset OTP for an existing account
// and mails the code. Unknown emails get [ErrAccountNotFound]; whether to
// surface that distinction to end users is the caller's choice.
func (e *Engine) BeginPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if _, err := e.directory.FindByEmail(ctx, email); err != nil {
		return err
	}

	issue, err := e.CreateOTP(ctx, email, OTPPasswordReset, nil)
	if err != nil {
		return err
	}
	return e.sendOTPMail(ctx, email, OTPPasswordReset, issue)
}

// CompletePasswordReset consumes the password-reset OTP with a user-typed
// code and replaces the account's password. Verification and replacement
// happen in one operation; a consumed code cannot be reused for a second
// reset.
func (e *Engine) CompletePasswordReset(ctx context.Context, email, code, newPassword string) error {
	return e.completePasswordReset(ctx, email, code, newPassword, false)
}

// CompletePasswordResetByLink is CompletePasswordReset for the emailed
// verification link.
func (e *Engine) CompletePasswordResetByLink(ctx context.Context, email, verificationToken, newPassword string) error {
	return e.completePasswordReset(ctx, email, verificationToken, newPassword, true)
}

func (e *Engine) completePasswordReset(ctx context.Context, email, secret, newPassword string, byToken bool) error {
	if newPassword == "" {
		return ErrValidation
	}

	if _, err := e.verify(ctx, email, secret, OTPPasswordReset, byToken); err != nil {
		return err
	}

	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	account, err := e.directory.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	passwordHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return e.directory.UpdatePassword(ctx, account.ID, passwordHash)
}
