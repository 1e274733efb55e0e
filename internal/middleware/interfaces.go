package middleware

import (
	"context"

	"clinicapi/internal/auth"
	"clinicapi/pkg/contracts/domain"
)

// TokenVerifier validates access tokens
type TokenVerifier interface {
	VerifyAccess(token string) (*auth.AccessClaims, error)
}

// IdentityLookup resolves the live identity behind a token. It must never
// return credentials.
type IdentityLookup interface {
	FindIdentity(ctx context.Context, id string) (*domain.Identity, error)
}

// LicenseProvider returns the current license, provisioning it if needed
type LicenseProvider interface {
	Current(ctx context.Context) (*domain.License, error)
}
