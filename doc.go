// Package identity implements MyDrive's identity-verification and
// session-token subsystem: OTP-gated account creation and password reset,
// plus a dual-token (short-lived access / long-lived refresh) credential
// lifecycle with explicit refresh-token revocation.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after [New] returns. All shared
// state (OTP records, revocation entries) lives in Redis, and every
// read-modify-write that correctness depends on is a single Lua script or a
// single-key command, so no application-level locking exists anywhere.
//
// # Architecture boundaries
//
// identity is the public surface. It exposes [Engine], [Config], the
// collaborator interfaces ([UserDirectory], [Mailer]), and value types.
// Store coordination and record encoding live under internal/ and are never
// exported. Token signing and parsing is the token subpackage; password
// hashing is the password subpackage.
//
// Access tokens are never checked against the revocation list; their
// security rests on short expiry alone. Only refresh tokens are revocable.
package identity
