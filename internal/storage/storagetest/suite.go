// Package storagetest holds behaviour checks shared by every storage backend
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

const (
	keyA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	keyB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

// RunUserRepositoryTests checks a UserRepository
func RunUserRepositoryTests(t *testing.T, repo storage.UserRepository) {
	ctx := context.Background()

	user := &domain.User{
		Identity: domain.Identity{
			Role:        domain.RoleAdmin,
			IsActive:    true,
			Permissions: domain.NewModuleSet(domain.ModulePatients),
		},
		Name:         "Dr Admin",
		Email:        "admin@clinic.example",
		PasswordHash: "hash",
	}
	require.NoError(t, repo.Create(ctx, user))
	require.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	t.Run("identity lookup", func(t *testing.T) {
		identity, err := repo.FindIdentity(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.ID, identity.ID)
		assert.Equal(t, domain.RoleAdmin, identity.Role)
		assert.True(t, identity.IsActive)
		assert.Equal(t, domain.NewModuleSet(domain.ModulePatients), identity.Permissions)
	})

	t.Run("email lookup is case insensitive and carries the hash", func(t *testing.T) {
		found, err := repo.FindByEmail(ctx, "ADMIN@clinic.example")
		require.NoError(t, err)
		assert.Equal(t, user.ID, found.ID)
		assert.Equal(t, "hash", found.PasswordHash)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := repo.FindIdentity(ctx, "does-not-exist")
		assert.True(t, storage.IsNotFound(err))

		_, err = repo.FindByEmail(ctx, "nobody@clinic.example")
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, &domain.User{Name: "Other", Email: "admin@clinic.example"})
		assert.ErrorIs(t, err, storage.ErrDuplicate)
	})
}

// RunLicenseRepositoryTests checks a LicenseRepository. newRepo must return an empty repository.
func RunLicenseRepositoryTests(t *testing.T, newRepo func(t *testing.T) storage.LicenseRepository) {
	ctx := context.Background()

	t.Run("get on empty store", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx)
		assert.True(t, storage.IsNotFound(err))

		_, _, err = repo.SetKeyIfMissing(ctx, keyA)
		assert.True(t, storage.IsNotFound(err))
	})

	t.Run("ensure inserts once", func(t *testing.T) {
		repo := newRepo(t)
		first, created, err := repo.Ensure(ctx, domain.License{LicenseKey: keyA, IsActive: true, EnabledModules: domain.AllModules()})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, keyA, first.LicenseKey)
		assert.Equal(t, domain.AllModules(), first.EnabledModules)

		second, created, err := repo.Ensure(ctx, domain.License{LicenseKey: keyB, IsActive: true})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, keyA, second.LicenseKey)
	})

	t.Run("concurrent ensure converges", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 16

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			keys    = make(map[string]int)
			created int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				candidate := keyA
				if i%2 == 1 {
					candidate = keyB
				}
				lic, ok, err := repo.Ensure(ctx, domain.License{LicenseKey: candidate, IsActive: true})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				keys[lic.LicenseKey]++
				if ok {
					created++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		assert.Len(t, keys, 1, "every caller sees the same license")
	})

	t.Run("key backfill only when missing", func(t *testing.T) {
		repo := newRepo(t)
		_, _, err := repo.Ensure(ctx, domain.License{IsActive: true})
		require.NoError(t, err)

		lic, set, err := repo.SetKeyIfMissing(ctx, keyA)
		require.NoError(t, err)
		assert.True(t, set)
		assert.Equal(t, keyA, lic.LicenseKey)

		lic, set, err = repo.SetKeyIfMissing(ctx, keyB)
		require.NoError(t, err)
		assert.False(t, set)
		assert.Equal(t, keyA, lic.LicenseKey)
	})

	t.Run("partial update and key replacement", func(t *testing.T) {
		repo := newRepo(t)
		_, _, err := repo.Ensure(ctx, domain.License{LicenseKey: keyA, IsActive: true, EnabledModules: domain.AllModules()})
		require.NoError(t, err)

		inactive := false
		lic, err := repo.Update(ctx, domain.LicenseUpdate{IsActive: &inactive})
		require.NoError(t, err)
		assert.False(t, lic.IsActive)
		assert.Equal(t, domain.AllModules(), lic.EnabledModules, "nil fields are untouched")

		modules := domain.NewModuleSet(domain.ModulePatients)
		lic, err = repo.Update(ctx, domain.LicenseUpdate{EnabledModules: &modules})
		require.NoError(t, err)
		assert.False(t, lic.IsActive)
		assert.Equal(t, modules, lic.EnabledModules)

		lic, err = repo.ReplaceKey(ctx, keyB)
		require.NoError(t, err)
		assert.Equal(t, keyB, lic.LicenseKey)

		got, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, keyB, got.LicenseKey)
		assert.Equal(t, modules, got.EnabledModules)
	})
}

// RunAuditRepositoryTests checks an AuditRepository. repo must be empty.
func RunAuditRepositoryTests(t *testing.T, repo storage.AuditRepository) {
	ctx := context.Background()
	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	entries := []domain.AuditLogEntry{
		{User: "u1", Action: domain.AuditActionCreate, Module: "patients", ResourceType: "Patient", ResourceID: "p1", Timestamp: base},
		{User: "u1", Action: domain.AuditActionUpdate, Module: "patients", ResourceType: "Patient", ResourceID: "p1",
			Changes: map[string]any{"name": "Jane"}, Timestamp: base.Add(time.Minute)},
		{User: "u2", Action: domain.AuditActionDelete, Module: "billing", ResourceType: "Invoice", ResourceID: "i1", Timestamp: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, repo.Insert(ctx, &entries[i]))
	}

	all, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, domain.AuditActionDelete, all[0].Action, "newest first")
	assert.Equal(t, "Jane", all[1].Changes["name"])

	patients, err := repo.List(ctx, domain.AuditFilter{Module: "patients", Action: domain.AuditActionUpdate})
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "p1", patients[0].ResourceID)

	byUser, err := repo.List(ctx, domain.AuditFilter{User: "u1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, domain.AuditActionUpdate, byUser[0].Action)
}

// RunRecordRepositoryTests checks a RecordRepository
func RunRecordRepositoryTests(t *testing.T, repo storage.RecordRepository) {
	ctx := context.Background()
	const coll = "patients"

	created, err := repo.Insert(ctx, coll, storage.Record{"name": "Jane", "_id": "client-chosen"})
	require.NoError(t, err)
	id, ok := created["_id"].(string)
	require.True(t, ok)
	assert.NotEqual(t, "client-chosen", id)
	assert.Equal(t, "Jane", created["name"])

	_, err = repo.Insert(ctx, coll, storage.Record{"name": "John"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, coll, id)
	require.NoError(t, err)
	assert.Equal(t, "Jane", got["name"])

	updated, err := repo.Update(ctx, coll, id, storage.Record{"phone": "555", "_id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, id, updated["_id"])
	assert.Equal(t, "Jane", updated["name"], "update merges")
	assert.Equal(t, "555", updated["phone"])

	list, err := repo.List(ctx, coll, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	limited, err := repo.List(ctx, coll, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	count, err := repo.Count(ctx, coll)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	require.NoError(t, repo.Delete(ctx, coll, id))
	_, err = repo.Get(ctx, coll, id)
	assert.True(t, storage.IsNotFound(err))
	assert.True(t, storage.IsNotFound(repo.Delete(ctx, coll, id)))

	_, err = repo.Update(ctx, coll, "does-not-exist", storage.Record{"a": 1})
	assert.True(t, storage.IsNotFound(err))

	empty, err := repo.Count(ctx, "unknown")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

// RunSettingsRepositoryTests checks a SettingsRepository. repo must be empty.
func RunSettingsRepositoryTests(t *testing.T, repo storage.SettingsRepository) {
	ctx := context.Background()

	doc, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc)

	_, err = repo.Put(ctx, storage.Record{"clinicName": "Smile", "_id": "x"})
	require.NoError(t, err)

	doc, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Smile", doc["clinicName"])
	assert.NotContains(t, doc, "_id")

	_, err = repo.Put(ctx, storage.Record{"timezone": "UTC"})
	require.NoError(t, err)
	doc, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.NotContains(t, doc, "clinicName", "put replaces")
	assert.Equal(t, "UTC", doc["timezone"])
}
