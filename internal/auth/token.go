// Package auth issues and validates the bearer tokens that guard the API.
// Clients exchange their configured API key for a short-lived token.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenExpiry is how long issued tokens are valid. Short expiry limits
// exposure if a token leaks; clients re-exchange the API key.
const AccessTokenExpiry = 1 * time.Hour

// Predefined token errors.
var (
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
)

// Claims are the claims carried in issued access tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenServiceConfig holds configuration for the token service.
type TokenServiceConfig struct {
	// APIKey is the key clients must present to obtain tokens. Empty
	// disables the exchange entirely.
	APIKey string

	// SigningKey is the secret used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim, e.g. "https://api.cercabus.es".
	Issuer string

	// Audience is the audience claim, e.g. "cercabus-api".
	Audience string
}

// TokenService exchanges API keys for signed bearer tokens and validates
// them on incoming requests.
type TokenService struct {
	apiKey     string
	signingKey []byte
	issuer     string
	audience   string
}

// NewTokenService creates a new token service.
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	return &TokenService{
		apiKey:     cfg.APIKey,
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// Exchange validates the presented API key and issues an access token.
func (s *TokenService) Exchange(apiKey string) (string, time.Time, error) {
	if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.apiKey)) != 1 {
		return "", time.Time{}, ErrInvalidAPIKey
	}

	now := time.Now()
	expiresAt := now.Add(AccessTokenExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   "api-key",
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate checks an access token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}
