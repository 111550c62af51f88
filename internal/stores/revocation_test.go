package stores

import (
	"context"
	"testing"
	"time"
)

func TestRevocationRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	list := NewRevocationList(rdb, "idv")

	revoked, err := list.IsRevoked(ctx, "refresh-token-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Fatal("fresh token reported revoked")
	}

	if err := list.Revoke(ctx, "refresh-token-1", "u1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err = list.IsRevoked(ctx, "refresh-token-1")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if !revoked {
		t.Fatal("revoked token not reported revoked")
	}

	// Revoking again is harmless.
	if err := list.Revoke(ctx, "refresh-token-1", "u1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("second Revoke failed: %v", err)
	}
}

func TestRevocationSkipsExpiredTokens(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	list := NewRevocationList(rdb, "idv")

	if err := list.Revoke(ctx, "stale-token", "u1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	revoked, err := list.IsRevoked(ctx, "stale-token")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Fatal("expired token should not get a revocation entry")
	}
}

func TestRevocationEntrySelfPurges(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	list := NewRevocationList(rdb, "idv")

	if err := list.Revoke(ctx, "short-lived", "u1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	revoked, err := list.IsRevoked(ctx, "short-lived")
	if err != nil {
		t.Fatalf("IsRevoked failed: %v", err)
	}
	if revoked {
		t.Fatal("entry should purge once the token itself could no longer verify")
	}
}
