package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the usuario a token was issued to. Sub is the usuario id
// in decimal.
type Claims struct {
	Sub   string `json:"sub"`
	Name  string `json:"usuario"`
	Role  string `json:"papel"`
	JTI   string `json:"jti"`
	Exp   int64  `json:"exp"`
	Issue int64  `json:"iat,omitempty"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

type jwtClaims struct {
	Usuario string `json:"usuario"`
	Papel   string `json:"papel"`
	jwt.RegisteredClaims
}

func IssueToken(secret []byte, claims Claims) (string, error) {
	registered := jwt.RegisteredClaims{
		Subject:   claims.Sub,
		ID:        claims.JTI,
		ExpiresAt: jwt.NewNumericDate(time.Unix(claims.Exp, 0)),
	}
	if claims.Issue != 0 {
		registered.IssuedAt = jwt.NewNumericDate(time.Unix(claims.Issue, 0))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Usuario:          claims.Name,
		Papel:            claims.Role,
		RegisteredClaims: registered,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	var parsed jwtClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims := Claims{
		Sub:  parsed.Subject,
		Name: parsed.Usuario,
		Role: parsed.Papel,
		JTI:  parsed.ID,
	}
	if parsed.ExpiresAt != nil {
		claims.Exp = parsed.ExpiresAt.Unix()
	}
	if parsed.IssuedAt != nil {
		claims.Issue = parsed.IssuedAt.Unix()
	}
	if claims.Sub == "" || claims.Name == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
