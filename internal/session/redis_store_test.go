package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url"); err == nil {
		t.Fatal("expected error for invalid redis url")
	}
}

func TestRevokeAndCheckToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(2 * time.Hour)

	if err := store.RevokeToken(ctx, "jti-1", expiresAt); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	revoked, err := store.IsTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsTokenRevoked failed: %v", err)
	}
	if !revoked {
		t.Fatal("expected jti-1 to be revoked")
	}

	rev, ok, err := store.LookupRevocation(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("LookupRevocation = %v, %v", ok, err)
	}
	if rev.JTI != "jti-1" || rev.ExpiresAt.Unix() != expiresAt.UTC().Unix() {
		t.Errorf("unexpected revocation record: %+v", rev)
	}

	if ttl := s.TTL("pedidos:revoked:jti-1"); ttl <= time.Hour || ttl > 2*time.Hour {
		t.Errorf("expected ttl close to token lifetime, got %v", ttl)
	}
}

func TestRevocationExpiresWithToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.RevokeToken(ctx, "jti-curto", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	revoked, err := store.IsTokenRevoked(ctx, "jti-curto")
	if err != nil {
		t.Fatalf("IsTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("expected revocation to expire with the token")
	}
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.RevokeToken(ctx, "jti-velho", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	if s.Exists("pedidos:revoked:jti-velho") {
		t.Error("expected no key for an already expired token")
	}
}

func TestRevocationIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.RevokeToken(ctx, "token-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	revoked, err := store.IsTokenRevoked(ctx, "token-2")
	if err != nil {
		t.Fatalf("IsTokenRevoked failed: %v", err)
	}
	if revoked {
		t.Error("token-2 must not be affected by revoking token-1")
	}

	_, ok, err := store.LookupRevocation(ctx, "token-2")
	if err != nil || ok {
		t.Errorf("LookupRevocation(token-2) = %v, %v", ok, err)
	}
}
