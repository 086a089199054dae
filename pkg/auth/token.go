package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors for bearer token verification.
var (
	ErrMissingToken = fmt.Errorf("missing bearer token")
	ErrInvalidToken = fmt.Errorf("invalid token")
)

// Claims is the fixed claim shape carried by every issued token. Tokens whose
// payload does not conform (empty subject id, empty role list) are rejected at
// verification time rather than trusted downstream.
type Claims struct {
	jwt.RegisteredClaims

	UserID string   `json:"id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
}

// TokenIssuer signs tokens under a shared HS256 secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. ttl bounds token lifetime.
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

// Issue signs a token for the given identity.
func (i *TokenIssuer) Issue(userID, email string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UserID: userID,
		Email:  email,
		Roles:  roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// TokenVerifier performs stateless verification of bearer tokens: identity and
// roles come verbatim from the verified claims, no user store is consulted.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with the shared secret.
func NewTokenVerifier(secret []byte) *TokenVerifier {
	return &TokenVerifier{secret: secret}
}

// Verify checks the token signature and expiry and returns the principal.
// A malformed, expired, or mis-signed token fails with ErrInvalidToken, as
// does any token whose claims lack a subject id or a non-empty role list.
func (v *TokenVerifier) Verify(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}

	if claims.UserID == "" || len(claims.Roles) == 0 {
		return Principal{}, ErrInvalidToken
	}

	return Principal{UserID: claims.UserID, Roles: claims.Roles}, nil
}
