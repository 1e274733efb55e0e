package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/pkg/contracts/domain"
)

const (
	accessSecret  = "access-secret-for-tests"
	refreshSecret = "refresh-secret-for-tests"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newIssuer(t *testing.T, opts ...Option) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(accessSecret, refreshSecret, opts...)
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuer(t *testing.T) {
	_, err := NewTokenIssuer("", refreshSecret)
	assert.Error(t, err)

	_, err = NewTokenIssuer(accessSecret, accessSecret)
	assert.Error(t, err, "secrets must differ")
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := newIssuer(t, WithClock(fixedClock(now)))

	token, err := issuer.IssueAccessToken("user-1", domain.RoleDentist)
	require.NoError(t, err)

	claims, err := issuer.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.ID)
	assert.Equal(t, domain.RoleDentist, claims.Role)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(DefaultAccessTTL).Unix(), claims.ExpiresAt.Unix())
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := newIssuer(t, WithClock(fixedClock(now)))

	token, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	claims, err := issuer.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.ID)
	assert.Equal(t, now.Add(DefaultRefreshTTL).Unix(), claims.ExpiresAt.Unix())
}

func TestIssuePair(t *testing.T) {
	issuer := newIssuer(t)

	pair, err := issuer.IssuePair("user-2", domain.RoleAdmin)
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	_, err = issuer.IssuePair("", domain.RoleAdmin)
	assert.Error(t, err)
}

func TestVerifyRejects(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := newIssuer(t, WithClock(fixedClock(issued)))

	access, err := issuer.IssueAccessToken("user-1", domain.RoleAdmin)
	require.NoError(t, err)
	refresh, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	otherSecret, err := NewTokenIssuer("another-access-secret", refreshSecret, WithClock(fixedClock(issued)))
	require.NoError(t, err)
	foreign, err := otherSecret.IssueAccessToken("user-1", domain.RoleAdmin)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, AccessClaims{
		ID:               "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour))},
	}).SignedString([]byte(accessSecret))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		ID:               "user-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{ID: "user-1"}).
		SignedString([]byte(accessSecret))
	require.NoError(t, err)

	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour))},
	}).SignedString([]byte(accessSecret))
	require.NoError(t, err)

	parts := strings.Split(access, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"refresh token used as access", refresh},
		{"signed with another secret", foreign},
		{"wrong algorithm", hs512},
		{"alg none", none},
		{"missing expiry", noExpiry},
		{"missing id", noID},
		{"tampered payload", tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := issuer.VerifyAccess(tt.token)
			require.Error(t, err)
			assert.Nil(t, claims)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := newIssuer(t, WithClock(fixedClock(issued)), WithTTL(time.Hour, 2*time.Hour))

	access, err := issuer.IssueAccessToken("user-1", domain.RoleAdmin)
	require.NoError(t, err)
	refresh, err := issuer.IssueRefreshToken("user-1")
	require.NoError(t, err)

	later := newIssuer(t, WithClock(fixedClock(issued.Add(90*time.Minute))))

	_, err = later.VerifyAccess(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = later.VerifyRefresh(refresh)
	assert.NoError(t, err, "refresh token outlives the access token")

	muchLater := newIssuer(t, WithClock(fixedClock(issued.Add(3*time.Hour))))
	_, err = muchLater.VerifyRefresh(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRefreshRejectsAccessToken(t *testing.T) {
	issuer := newIssuer(t)
	access, err := issuer.IssueAccessToken("user-1", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
