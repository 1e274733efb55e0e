package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicapi/pkg/contracts/domain"
)

// NewMemoryStore creates a Store backed by process memory
func NewMemoryStore() *Store {
	s := NewStore("memory", nil, nil)
	s.Users = NewMemoryUserRepository()
	s.Licenses = NewMemoryLicenseRepository()
	s.Audit = NewMemoryAuditRepository()
	s.Records = NewMemoryRecordRepository()
	s.Settings = NewMemorySettingsRepository()
	return s
}

// MemoryUserRepository is an in-memory implementation of UserRepository
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]*domain.User
	byEmail map[string]string
}

// NewMemoryUserRepository creates a new in-memory user repository
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// FindIdentity returns the identity of a user
func (r *MemoryUserRepository) FindIdentity(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, NotFound("user", id)
	}
	identity := user.Identity.Clone()
	return &identity, nil
}

// FindByEmail returns a copy of the user with the given email
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[strings.ToLower(email)]
	if !exists {
		return nil, NotFound("user", "")
	}
	userCopy := *r.users[id]
	userCopy.Identity = userCopy.Identity.Clone()
	return &userCopy, nil
}

// Create stores a new user
func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return Duplicate("user", "email")
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	userCopy := *user
	userCopy.Identity = user.Identity.Clone()
	r.users[user.ID] = &userCopy
	r.byEmail[email] = user.ID
	return nil
}

// MemoryLicenseRepository is an in-memory implementation of LicenseRepository.
// The mutex makes insert-if-absent atomic.
type MemoryLicenseRepository struct {
	mu      sync.Mutex
	license *domain.License
}

// NewMemoryLicenseRepository creates an empty license repository
func NewMemoryLicenseRepository() *MemoryLicenseRepository {
	return &MemoryLicenseRepository{}
}

func (r *MemoryLicenseRepository) snapshot() *domain.License {
	lic := r.license.Clone()
	return &lic
}

// Get returns the license
func (r *MemoryLicenseRepository) Get(_ context.Context) (*domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.license == nil {
		return nil, NotFound("license", "")
	}
	return r.snapshot(), nil
}

// Ensure inserts candidate if no license exists
func (r *MemoryLicenseRepository) Ensure(_ context.Context, candidate domain.License) (*domain.License, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.license != nil {
		return r.snapshot(), false, nil
	}

	lic := candidate.Clone()
	now := time.Now().UTC()
	lic.CreatedAt, lic.UpdatedAt = now, now
	r.license = &lic
	return r.snapshot(), true, nil
}

// SetKeyIfMissing stores key when the license has none
func (r *MemoryLicenseRepository) SetKeyIfMissing(_ context.Context, key string) (*domain.License, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.license == nil {
		return nil, false, NotFound("license", "")
	}
	if r.license.LicenseKey != "" {
		return r.snapshot(), false, nil
	}
	r.license.LicenseKey = key
	r.license.UpdatedAt = time.Now().UTC()
	return r.snapshot(), true, nil
}

// Update applies a partial update
func (r *MemoryLicenseRepository) Update(_ context.Context, upd domain.LicenseUpdate) (*domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.license == nil {
		return nil, NotFound("license", "")
	}
	if upd.IsActive != nil {
		r.license.IsActive = *upd.IsActive
	}
	if upd.EnabledModules != nil {
		r.license.EnabledModules = upd.EnabledModules.Clone()
	}
	r.license.UpdatedAt = time.Now().UTC()
	return r.snapshot(), nil
}

// ReplaceKey overwrites the license key
func (r *MemoryLicenseRepository) ReplaceKey(_ context.Context, key string) (*domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.license == nil {
		return nil, NotFound("license", "")
	}
	r.license.LicenseKey = key
	r.license.UpdatedAt = time.Now().UTC()
	return r.snapshot(), nil
}

// Put replaces the stored license as-is. Used by tests to seed odd states.
func (r *MemoryLicenseRepository) Put(lic domain.License) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := lic.Clone()
	r.license = &c
}

// Reset removes the license
func (r *MemoryLicenseRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.license = nil
}

// MemoryAuditRepository is an in-memory implementation of AuditRepository
type MemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditLogEntry
}

// NewMemoryAuditRepository creates an empty audit repository
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

// Insert appends an entry
func (r *MemoryAuditRepository) Insert(_ context.Context, entry *domain.AuditLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entryCopy := *entry
	entryCopy.Changes = deepCopyMap(entry.Changes)
	r.entries = append(r.entries, entryCopy)
	return nil
}

// List returns matching entries, newest first
func (r *MemoryAuditRepository) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.AuditLogEntry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		entry := r.entries[i]

		if filter.Module != "" && entry.Module != filter.Module {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.User != "" && entry.User != filter.User {
			continue
		}

		entry.Changes = deepCopyMap(entry.Changes)
		result = append(result, entry)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// MemoryRecordRepository is an in-memory implementation of RecordRepository
type MemoryRecordRepository struct {
	mu          sync.RWMutex
	collections map[string]*recordCollection
}

type recordCollection struct {
	order []string
	docs  map[string]Record
}

// NewMemoryRecordRepository creates an empty record repository
func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{collections: make(map[string]*recordCollection)}
}

func (r *MemoryRecordRepository) collection(name string) *recordCollection {
	c, exists := r.collections[name]
	if !exists {
		c = &recordCollection{docs: make(map[string]Record)}
		r.collections[name] = c
	}
	return c
}

// List returns documents in insertion order
func (r *MemoryRecordRepository) List(_ context.Context, collection string, limit int) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Record, 0)
	c, exists := r.collections[collection]
	if !exists {
		return result, nil
	}
	for _, id := range c.order {
		result = append(result, deepCopyMap(c.docs[id]))
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Get returns one document
func (r *MemoryRecordRepository) Get(_ context.Context, collection, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, exists := r.collections[collection]; exists {
		if doc, ok := c.docs[id]; ok {
			return deepCopyMap(doc), nil
		}
	}
	return nil, NotFound(collection, id)
}

// Insert stores a new document under a fresh ID
func (r *MemoryRecordRepository) Insert(_ context.Context, collection string, doc Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := deepCopyMap(doc)
	if stored == nil {
		stored = Record{}
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	stored["_id"] = id
	stored["createdAt"] = now
	stored["updatedAt"] = now

	c := r.collection(collection)
	c.docs[id] = stored
	c.order = append(c.order, id)
	return deepCopyMap(stored), nil
}

// Update merges fields into an existing document
func (r *MemoryRecordRepository) Update(_ context.Context, collection, id string, doc Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.collections[collection]
	if !exists {
		return nil, NotFound(collection, id)
	}
	stored, ok := c.docs[id]
	if !ok {
		return nil, NotFound(collection, id)
	}
	for k, v := range StripSystemFields(doc) {
		stored[k] = deepCopyValue(v)
	}
	stored["updatedAt"] = time.Now().UTC()
	return deepCopyMap(stored), nil
}

// Delete removes a document
func (r *MemoryRecordRepository) Delete(_ context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.collections[collection]
	if !exists {
		return NotFound(collection, id)
	}
	if _, ok := c.docs[id]; !ok {
		return NotFound(collection, id)
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the number of documents in a collection
func (r *MemoryRecordRepository) Count(_ context.Context, collection string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, exists := r.collections[collection]; exists {
		return int64(len(c.docs)), nil
	}
	return 0, nil
}

// MemorySettingsRepository is an in-memory implementation of SettingsRepository
type MemorySettingsRepository struct {
	mu  sync.RWMutex
	doc Record
}

// NewMemorySettingsRepository creates an empty settings repository
func NewMemorySettingsRepository() *MemorySettingsRepository {
	return &MemorySettingsRepository{}
}

// Get returns the saved settings
func (r *MemorySettingsRepository) Get(_ context.Context) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.doc == nil {
		return Record{}, nil
	}
	return deepCopyMap(r.doc), nil
}

// Put replaces the settings
func (r *MemorySettingsRepository) Put(_ context.Context, doc Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := StripSystemFields(doc)
	stored["updatedAt"] = time.Now().UTC()
	r.doc = stored
	return deepCopyMap(stored), nil
}
