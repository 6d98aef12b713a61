package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthenticationError means no usable credential was presented: the header
// is missing, is not a bearer credential, or the token cannot be decoded.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string { return "authentication failed: " + e.Reason }

// AuthorizationError means a decodable token was presented but must not be
// honoured: bad signature, expired or revoked.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string { return "authorization failed: " + e.Reason }

func (e *AuthorizationError) Unwrap() error { return e.Err }

// Identity is the authenticated caller. UsuarioID scopes every pedido query.
type Identity struct {
	UsuarioID int64
	Usuario   string
	Papel     string
	JTI       string
	ExpiresAt time.Time
}

// RevocationList remembers logged-out tokens until they expire.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type Guard struct {
	secret  []byte
	revoked RevocationList
}

func NewGuard(secret []byte, revoked RevocationList) *Guard {
	return &Guard{secret: secret, revoked: revoked}
}

// Authenticate resolves an Authorization header value into an Identity.
func (g *Guard) Authenticate(ctx context.Context, header string) (Identity, error) {
	token, ok := BearerToken(header)
	if !ok {
		return Identity{}, &AuthenticationError{Reason: "missing bearer token"}
	}

	claims, err := ParseToken(g.secret, token)
	switch {
	case err == nil:
	case errors.Is(err, ErrExpiredToken):
		return Identity{}, &AuthorizationError{Reason: "token expired", Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Identity{}, &AuthenticationError{Reason: "malformed token"}
	default:
		return Identity{}, &AuthorizationError{Reason: "token rejected", Err: err}
	}

	usuarioID, err := strconv.ParseInt(claims.Sub, 10, 64)
	if err != nil || usuarioID <= 0 {
		return Identity{}, &AuthorizationError{Reason: "token subject is not a usuario id", Err: ErrInvalidToken}
	}

	if g.revoked != nil {
		revoked, err := g.revoked.IsTokenRevoked(ctx, claims.JTI)
		if err != nil {
			return Identity{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Identity{}, &AuthorizationError{Reason: "token revoked", Err: ErrInvalidToken}
		}
	}

	return Identity{
		UsuarioID: usuarioID,
		Usuario:   claims.Name,
		Papel:     claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Revoke invalidates the identity's token for the rest of its lifetime.
func (g *Guard) Revoke(ctx context.Context, id Identity) error {
	if g.revoked == nil || id.JTI == "" {
		return nil
	}
	return g.revoked.RevokeToken(ctx, id.JTI, id.ExpiresAt)
}

// BearerToken extracts the credential from an "Authorization: Bearer x"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
