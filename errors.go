package identity

import "errors"

var (
	// ErrValidation reports missing or malformed caller input (empty email,
	// code, token, password).
	ErrValidation = errors.New("invalid input")
	// ErrOTPNotFoundOrExpired reports that no live OTP record exists for the
	// (email, type) pair: never created, past its TTL, or already consumed.
	ErrOTPNotFoundOrExpired = errors.New("otp not found or expired")
	// ErrOTPIncorrect reports a wrong code or token short of the lockout
	// threshold. The accompanying VerifyResult carries the remaining attempts.
	ErrOTPIncorrect = errors.New("incorrect otp")
	// ErrOTPLockedOut reports that the attempt budget is exhausted. The
	// accompanying VerifyResult carries the remaining lockout duration.
	// There is no override path; only the lockout window elapsing recovers it.
	ErrOTPLockedOut = errors.New("otp locked out")
	// ErrRegistrationDataExpired reports a registration verification that
	// succeeded without a staged pending-user snapshot. Recoverable only by
	// restarting registration.
	ErrRegistrationDataExpired = errors.New("registration data expired")

	// ErrTokenMissing reports an absent credential.
	ErrTokenMissing = errors.New("missing token")
	// ErrTokenInvalid reports a token with a bad signature or shape.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired reports a structurally valid token past its expiry.
	// For access tokens this is the one failure a refresh exchange can cure.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenWrongType reports a validly signed token presented where the
	// other token type was expected.
	ErrTokenWrongType = errors.New("wrong token type")
	// ErrTokenRevoked reports a refresh token on the revocation list. Fatal
	// to that token; it cannot be un-revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInvalidCredentials reports a failed login. Unknown username and
	// wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists reports a duplicate username or email at registration.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is the directory's miss sentinel.
	ErrAccountNotFound = errors.New("account not found")

	// ErrStoreUnavailable reports an unreachable storage backend.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrEngineNotReady reports use of a zero-value or partially wired Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
