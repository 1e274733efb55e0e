package storage

import (
	"context"

	"clinicapi/pkg/contracts/domain"
)

// Record is an opaque clinic document. Stored records carry "_id",
// "createdAt" and "updatedAt" set by the repository.
type Record = map[string]any

// UserRepository stores accounts
type UserRepository interface {
	// FindIdentity returns the identity of a user without any credential
	FindIdentity(ctx context.Context, id string) (*domain.Identity, error)
	// FindByEmail returns the full user including the password hash
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// Create stores a new user and fills its ID and timestamps
	Create(ctx context.Context, user *domain.User) error
}

// LicenseRepository stores the license singleton
type LicenseRepository interface {
	// Get returns the license or ErrNotFound
	Get(ctx context.Context) (*domain.License, error)
	// Ensure inserts candidate only if no license exists and returns the
	// stored license. created reports whether candidate was inserted.
	Ensure(ctx context.Context, candidate domain.License) (lic *domain.License, created bool, err error)
	// SetKeyIfMissing stores key only when the license has none. set
	// reports whether key was written.
	SetKeyIfMissing(ctx context.Context, key string) (lic *domain.License, set bool, err error)
	// Update applies the non-nil fields of upd
	Update(ctx context.Context, upd domain.LicenseUpdate) (*domain.License, error)
	// ReplaceKey overwrites the license key
	ReplaceKey(ctx context.Context, key string) (*domain.License, error)
}

// AuditRepository stores audit entries
type AuditRepository interface {
	Insert(ctx context.Context, entry *domain.AuditLogEntry) error
	// List returns matching entries, newest first
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error)
}

// RecordRepository stores clinic documents grouped by collection
type RecordRepository interface {
	List(ctx context.Context, collection string, limit int) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Insert(ctx context.Context, collection string, doc Record) (Record, error)
	// Update sets the given fields and returns the merged document
	Update(ctx context.Context, collection, id string, doc Record) (Record, error)
	Delete(ctx context.Context, collection, id string) error
	Count(ctx context.Context, collection string) (int64, error)
}

// SettingsRepository stores the single clinic settings document
type SettingsRepository interface {
	// Get returns the settings, or an empty document when none were saved
	Get(ctx context.Context) (Record, error)
	// Put replaces the settings
	Put(ctx context.Context, doc Record) (Record, error)
}
