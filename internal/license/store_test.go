package license

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/shared/testutil"
	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

type storeFixture struct {
	store   *Store
	repo    *storage.MemoryLicenseRepository
	keys    *KeyFile
	handler *testutil.BufferedSlogHandler
}

func newStoreFixture(t *testing.T, opts ...Option) *storeFixture {
	t.Helper()
	logger, handler := testutil.NewTestLogger(t)
	repo := storage.NewMemoryLicenseRepository()
	keys := NewKeyFile(filepath.Join(t.TempDir(), ".env"))
	return &storeFixture{
		store:   NewStore(repo, keys, logger, opts...),
		repo:    repo,
		keys:    keys,
		handler: handler,
	}
}

func TestStoreProvisionsOnFirstUse(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	lic, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.True(t, lic.IsActive)
	assert.Equal(t, domain.AllModules(), lic.EnabledModules)
	assert.NoError(t, ValidateKey(lic.LicenseKey))

	mirrored, err := f.keys.ReadKey()
	require.NoError(t, err)
	assert.Equal(t, lic.LicenseKey, mirrored)
	assert.True(t, f.handler.ContainsAttr("kind", ProvisionCreated))

	again, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, lic.LicenseKey, again.LicenseKey)
}

func TestStoreMirrorsPlainKeyLine(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.Current(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(f.keys.Path())
	require.NoError(t, err)
	assert.Regexp(t, `^LICENSE_KEY=[0-9A-F]{48}\n$`, string(data))
}

func TestStoreConcurrentProvisioningConverges(t *testing.T) {
	f := newStoreFixture(t)

	const callers = 32
	keys := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lic, err := f.store.Current(context.Background())
			if assert.NoError(t, err) {
				keys[i] = lic.LicenseKey
			}
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}

	stored, err := f.repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, keys[0], stored.LicenseKey)

	mirrored, err := f.keys.ReadKey()
	require.NoError(t, err)
	assert.Equal(t, keys[0], mirrored)
}

// blockingRepo holds Get open until released so callers pile onto one load
type blockingRepo struct {
	*storage.MemoryLicenseRepository
	entered chan struct{}
	release chan struct{}
	gets    atomic.Int32
}

func (r *blockingRepo) Get(ctx context.Context) (*domain.License, error) {
	if r.gets.Add(1) == 1 {
		close(r.entered)
	}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.MemoryLicenseRepository.Get(ctx)
}

func TestStoreSharedLoadSurvivesCallerCancellation(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	repo := &blockingRepo{
		MemoryLicenseRepository: storage.NewMemoryLicenseRepository(),
		entered:                 make(chan struct{}),
		release:                 make(chan struct{}),
	}
	store := NewStore(repo, nil, logger)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := store.Current(firstCtx)
		firstErr <- err
	}()
	<-repo.entered

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	// The load is still in flight, so this caller joins it
	type result struct {
		lic *domain.License
		err error
	}
	second := make(chan result, 1)
	go func() {
		lic, err := store.Current(context.Background())
		second <- result{lic, err}
	}()

	close(repo.release)
	res := <-second
	require.NoError(t, res.err)
	assert.NoError(t, ValidateKey(res.lic.LicenseKey))
	assert.Equal(t, int32(1), repo.gets.Load())
}

func TestStoreSharedLoadTimesOut(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	repo := &blockingRepo{
		MemoryLicenseRepository: storage.NewMemoryLicenseRepository(),
		entered:                 make(chan struct{}),
		release:                 make(chan struct{}),
	}
	store := NewStore(repo, nil, logger, WithLoadTimeout(20*time.Millisecond))

	_, err := store.Current(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreReusesSecretsFileKeyAfterReset(t *testing.T) {
	f := newStoreFixture(t)
	_, err := f.keys.EnsureKey(testutil.TestLicenseKey)
	require.NoError(t, err)

	lic, err := f.store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.TestLicenseKey, lic.LicenseKey)
	assert.True(t, f.handler.ContainsAttr("kind", ProvisionRestored))
}

func TestStoreIgnoresMalformedSecretsFileKey(t *testing.T) {
	f := newStoreFixture(t)
	require.NoError(t, os.WriteFile(f.keys.Path(), []byte("LICENSE_KEY=not-a-key\n"), 0o600))

	lic, err := f.store.Current(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "not-a-key", lic.LicenseKey)
	assert.NoError(t, ValidateKey(lic.LicenseKey))
	testutil.AssertLogContains(t, f.handler, slog.LevelWarn, "Ignoring malformed license key in secrets file")

	// write-if-absent leaves the existing value alone
	mirrored, err := f.keys.ReadKey()
	require.NoError(t, err)
	assert.Equal(t, "not-a-key", mirrored)
}

func TestStoreBackfillsMissingKey(t *testing.T) {
	t.Run("generated", func(t *testing.T) {
		f := newStoreFixture(t)
		f.repo.Put(domain.License{IsActive: false, EnabledModules: domain.NewModuleSet(domain.ModuleBilling)})

		lic, err := f.store.Current(context.Background())
		require.NoError(t, err)
		assert.NoError(t, ValidateKey(lic.LicenseKey))
		assert.False(t, lic.IsActive, "backfill keeps the flags")
		assert.Equal(t, domain.NewModuleSet(domain.ModuleBilling), lic.EnabledModules)

		mirrored, err := f.keys.ReadKey()
		require.NoError(t, err)
		assert.Equal(t, lic.LicenseKey, mirrored)
	})

	t.Run("from secrets file", func(t *testing.T) {
		f := newStoreFixture(t)
		f.repo.Put(domain.License{IsActive: true})
		_, err := f.keys.EnsureKey(testutil.TestLicenseKey)
		require.NoError(t, err)

		lic, err := f.store.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testutil.TestLicenseKey, lic.LicenseKey)
	})
}

func TestStoreSwallowsSecretsFileFailures(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	repo := storage.NewMemoryLicenseRepository()
	store := NewStore(repo, NewKeyFile(t.TempDir()), logger)

	lic, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, lic.LicenseKey)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "Could not write license key to secrets file")
}

func TestStoreWithoutSecretsFile(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	store := NewStore(storage.NewMemoryLicenseRepository(), nil, logger)

	lic, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, lic.LicenseKey)
	assert.Empty(t, handler.GetRecordsByLevel(slog.LevelWarn))
}

func TestStoreUpdate(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	inactive := false
	modules := domain.NewModuleSet(domain.ModulePatients)
	lic, err := f.store.Update(ctx, domain.LicenseUpdate{IsActive: &inactive, EnabledModules: &modules})
	require.NoError(t, err)
	assert.False(t, lic.IsActive)
	assert.Equal(t, modules, lic.EnabledModules)
	assert.NotEmpty(t, lic.LicenseKey, "update provisions first")

	current, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.False(t, current.IsActive)
}

func TestStoreReissueKey(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(f.keys.Path(), []byte("# secrets\nA=1\n"), 0o600))

	before, err := f.store.Current(ctx)
	require.NoError(t, err)

	after, err := f.store.ReissueKey(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before.LicenseKey, after.LicenseKey)
	assert.NoError(t, ValidateKey(after.LicenseKey))

	mirrored, err := f.keys.ReadKey()
	require.NoError(t, err)
	assert.Equal(t, after.LicenseKey, mirrored)
	assert.Contains(t, readFile(t, f.keys.Path()), "# secrets\nA=1\n")

	current, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, after.LicenseKey, current.LicenseKey)
}

func TestStoreCache(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	f := newStoreFixture(t, WithCacheTTL(time.Minute), WithClock(clock))
	ctx := context.Background()

	first, err := f.store.Current(ctx)
	require.NoError(t, err)

	// a change behind the store's back is hidden until the entry expires
	f.repo.Put(domain.License{LicenseKey: first.LicenseKey, IsActive: false})
	cached, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.True(t, cached.IsActive)

	now = now.Add(time.Minute)
	fresh, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive)

	active := true
	_, err = f.store.Update(ctx, domain.LicenseUpdate{IsActive: &active})
	require.NoError(t, err)
	updated, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.True(t, updated.IsActive, "update invalidates the cache")
}

func TestStoreReturnsCopies(t *testing.T) {
	f := newStoreFixture(t, WithCacheTTL(time.Minute))
	ctx := context.Background()

	lic, err := f.store.Current(ctx)
	require.NoError(t, err)
	lic.EnabledModules[0] = "tampered"
	lic.IsActive = false

	again, err := f.store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModuleDashboard, again.EnabledModules[0])
	assert.True(t, again.IsActive)
}

func TestStoreProvision(t *testing.T) {
	f := newStoreFixture(t)
	lic, err := f.store.Provision(context.Background())
	require.NoError(t, err)
	assert.True(t, lic.IsActive)
	testutil.AssertLogContains(t, f.handler, slog.LevelInfo, "License ready")
}
