package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// otpAlphabet is the 36-symbol code alphabet: uppercase letters and digits.
const otpAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const verificationTokenSize = 32

// NewOTPCode draws length characters uniformly from the 36-symbol alphabet.
func NewOTPCode(length int) (string, error) {
	if length < 4 || length > 10 {
		return "", errors.New("invalid otp code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(otpAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(otpAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// NewVerificationToken returns a 256-bit opaque token for the email-link
// flow, base64url without padding. Independent of the code.
func NewVerificationToken() (string, error) {
	var raw [verificationTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashSecret is the one-way digest stored in place of codes and
// verification tokens: hex-encoded SHA-256.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
