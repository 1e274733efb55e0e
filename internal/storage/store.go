package storage

import "context"

// Store bundles the repositories of one backend
type Store struct {
	Users    UserRepository
	Licenses LicenseRepository
	Audit    AuditRepository
	Records  RecordRepository
	Settings SettingsRepository

	Driver string
	ping   func(ctx context.Context) error
	close  func(ctx context.Context) error
}

// NewStore assembles a Store. ping and close may be nil.
func NewStore(driver string, ping, close func(ctx context.Context) error) *Store {
	return &Store{Driver: driver, ping: ping, close: close}
}

// Ping checks that the backend is reachable
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backend connection
func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}
