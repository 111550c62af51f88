package identity

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mydrive/identity/token"
)

// Login verifies a username/password pair and mints a token pair. Unknown
// usernames and wrong passwords both answer [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, username, pass string) (*Account, *TokenPair, error) {
	if !e.ready() {
		return nil, nil, ErrEngineNotReady
	}
	if username == "" || pass == "" {
		return nil, nil, ErrValidation
	}

	account, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	match, err := e.hasher.Verify(pass, account.PasswordHash)
	if err != nil || !match {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := e.IssueTokens(account.ID)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// IssueTokens mints a fresh access/refresh pair for userID.
func (e *Engine) IssueTokens(userID string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrValidation
	}

	access, err := e.tokens.Issue(token.Access, userID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	refresh, err := e.tokens.Issue(token.Refresh, userID)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Authorize accepts or rejects an access token for one request. Failures
// are classified so the caller can decide between a refresh exchange
// ([ErrTokenExpired]) and a full re-login (every other reason). The
// revocation list is never consulted here: access tokens rely on short
// expiry alone.
func (e *Engine) Authorize(accessToken string) (Principal, error) {
	if !e.ready() {
		return Principal{}, ErrEngineNotReady
	}
	if accessToken == "" {
		return Principal{}, ErrTokenMissing
	}

	claims, err := e.tokens.Parse(token.Access, accessToken)
	if err != nil {
		return Principal{}, mapTokenError(err)
	}
	return Principal{UserID: claims.Subject}, nil
}

// Refresh exchanges a valid, non-revoked refresh token for a new access
// token. The revocation check runs first: a revoked token is rejected
// regardless of its remaining validity. The refresh token itself is not
// rotated; it stays valid until its own expiry or an explicit [Engine.Logout].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if refreshToken == "" {
		return "", ErrTokenMissing
	}

	revoked, err := e.revocations.IsRevoked(ctx, refreshToken)
	if err != nil {
		return "", mapStoreError(err)
	}
	if revoked {
		return "", ErrTokenRevoked
	}

	claims, err := e.tokens.Parse(token.Refresh, refreshToken)
	if err != nil {
		return "", mapTokenError(err)
	}

	access, err := e.tokens.Issue(token.Access, claims.Subject)
	if err != nil {
		return "", ErrTokenInvalid
	}
	return access, nil
}

// Logout revokes the refresh token until its own expiry instant. The
// paired access token is left to expire naturally. Revoking an
// already-revoked or already-expired token is a no-op.
func (e *Engine) Logout(ctx context.Context, refreshToken, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if refreshToken == "" || userID == "" {
		return ErrValidation
	}

	// Signature and type still checked; expiry is not, since an expired
	// token simply yields a zero-TTL entry that Revoke skips.
	claims, err := e.tokens.Decode(token.Refresh, refreshToken)
	if err != nil {
		return mapTokenError(err)
	}

	if err := e.revocations.Revoke(ctx, refreshToken, userID, claims.ExpiresAt.Time); err != nil {
		e.log.Warn("refresh token revocation write failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return mapStoreError(err)
	}
	return nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrWrongType):
		return ErrTokenWrongType
	default:
		return ErrTokenInvalid
	}
}
