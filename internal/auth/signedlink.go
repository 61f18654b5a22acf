package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// LinkManager issues and validates signed dataset links: compact HS256 tokens
// binding a buyer email and dataset version to an expiry. These are the
// legacy direct-download credentials, separate from purchase tokens.
type LinkManager struct {
	secret []byte
	ttl    time.Duration
}

// NewLinkManager builds a new manager.
func NewLinkManager(secret string, ttl time.Duration) *LinkManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LinkManager{secret: []byte(secret), ttl: ttl}
}

// LinkClaims describes the signed-link payload.
type LinkClaims struct {
	Email   string `json:"e"`
	Version string `json:"v"`
	jwt.RegisteredClaims
}

// GenerateLink builds and signs a dataset link token.
func (lm *LinkManager) GenerateLink(email, version string) (string, time.Time, error) {
	if len(lm.secret) == 0 {
		return "", time.Time{}, errors.New("link secret not configured")
	}
	expiresAt := time.Now().Add(lm.ttl)
	claims := &LinkClaims{
		Email:   email,
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(lm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseLink validates and returns claims.
func (lm *LinkManager) ParseLink(tokenStr string) (*LinkClaims, error) {
	if len(lm.secret) == 0 {
		return nil, errors.New("link secret not configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &LinkClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return lm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*LinkClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid link claims")
	}
	return claims, nil
}
