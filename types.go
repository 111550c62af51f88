package identity

import (
	"context"
	"time"
)

// OTPType is the closed set of flows an OTP record can belong to. Every
// branch on an OTPType must match exhaustively; unknown values are rejected
// at the engine boundary, never silently passed through.
type OTPType uint8

const (
	// OTPRegistration gates account creation.
	OTPRegistration OTPType = iota
	// OTPPasswordReset gates password replacement for an existing account.
	OTPPasswordReset
)

// String returns the stable wire/storage name of the flow.
func (t OTPType) String() string {
	switch t {
	case OTPRegistration:
		return "registration"
	case OTPPasswordReset:
		return "password-reset"
	default:
		return "unknown"
	}
}

func (t OTPType) valid() bool {
	switch t {
	case OTPRegistration, OTPPasswordReset:
		return true
	default:
		return false
	}
}

// PendingUser is the account snapshot staged inside a registration OTP
// record. It is the single source of truth for the data an account is
// created from: an account must never be created except from the snapshot
// returned by a successful registration verification.
type PendingUser struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// RegistrationRequest carries the raw signup form. Password is plaintext
// here and is hashed before it is staged; it never reaches storage.
type RegistrationRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// OTPIssue is returned by [Engine.CreateOTP]: the plaintext code for the
// type-it-in flow and the opaque verification token for the email-link flow.
// Neither is ever persisted in plaintext.
type OTPIssue struct {
	Code              string
	VerificationToken string
	ExpiresAt         time.Time
}

// VerifyResult is returned by the OTP verification operations. On success
// PendingUser holds the staged snapshot for registration flows (nil for
// password reset). On ErrOTPIncorrect RemainingAttempts is set; on
// ErrOTPLockedOut RetryAfter is the remaining lockout duration.
type VerifyResult struct {
	PendingUser       *PendingUser
	RemainingAttempts int
	RetryAfter        time.Duration
}

// Principal identifies the authenticated subject of an accepted access token.
type Principal struct {
	UserID string
}

// TokenPair is an access/refresh credential pair for one subject.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Account is the directory's view of a persisted user. PasswordHash is the
// PHC-encoded argon2id hash produced by the password subpackage.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// NewAccount is the creation payload handed to the directory after a
// successful registration verification. Its fields are exactly the staged
// snapshot.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// UserDirectory is the persistence collaborator for accounts. The engine
// owns no account storage; callers plug in their own implementation.
// Lookups return [ErrAccountNotFound] on a miss and Create returns
// [ErrAccountExists] when a username or email is already taken.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, account NewAccount) (*Account, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// OTPMail is the delivery request handed to the [Mailer]. Content and
// formatting are the mailer's concern; the engine only supplies the
// ingredients.
type OTPMail struct {
	Recipient  string
	Code       string
	Flow       OTPType
	VerifyLink string
}

// Mailer delivers OTP mail. Implementations must be safe for concurrent use.
type Mailer interface {
	SendOTP(ctx context.Context, mail OTPMail) error
}
