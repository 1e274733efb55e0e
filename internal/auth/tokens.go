package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"clinicapi/pkg/contracts/domain"
)

// Default token lifetimes
const (
	DefaultAccessTTL  = 7 * 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims of an access token
type AccessClaims struct {
	ID   string      `json:"id"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims are the claims of a refresh token
type RefreshClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenPair is returned by login and refresh
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer signs and verifies access and refresh tokens
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option configures a TokenIssuer
type Option func(*TokenIssuer)

// WithTTL overrides the token lifetimes. Non-positive values keep the default.
func WithTTL(access, refresh time.Duration) Option {
	return func(t *TokenIssuer) {
		if access > 0 {
			t.accessTTL = access
		}
		if refresh > 0 {
			t.refreshTTL = refresh
		}
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// NewTokenIssuer creates a token issuer. The two secrets must be non-empty and distinct.
func NewTokenIssuer(accessSecret, refreshSecret string, opts ...Option) (*TokenIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets must not be empty")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}

	t := &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// IssueAccessToken signs an access token for the given user
func (t *TokenIssuer) IssueAccessToken(id string, role domain.Role) (string, error) {
	if id == "" {
		return "", errors.New("user id is required")
	}
	now := t.now()
	claims := AccessClaims{
		ID:   id,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	}
	return sign(claims, t.accessSecret)
}

// IssueRefreshToken signs a refresh token for the given user
func (t *TokenIssuer) IssueRefreshToken(id string) (string, error) {
	if id == "" {
		return "", errors.New("user id is required")
	}
	now := t.now()
	claims := RefreshClaims{
		ID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
		},
	}
	return sign(claims, t.refreshSecret)
}

// IssuePair signs a fresh access and refresh token
func (t *TokenIssuer) IssuePair(id string, role domain.Role) (TokenPair, error) {
	access, err := t.IssueAccessToken(id, role)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := t.IssueRefreshToken(id)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess checks an access token and returns its claims
func (t *TokenIssuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(token, claims, t.accessSecret); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token and returns its claims
func (t *TokenIssuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(token, claims, t.refreshSecret); err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing id claim", ErrInvalidToken)
	}
	return claims, nil
}

func (t *TokenIssuer) parse(token string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

func sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
