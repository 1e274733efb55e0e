package license

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"clinicapi/internal/infrastructure"
	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

// Provisioning outcomes
const (
	ProvisionCreated    = "created"
	ProvisionRestored   = "restored"
	ProvisionBackfilled = "backfilled"
	ProvisionReissued   = "reissued"
)

const loadKey = "license"

// DefaultLoadTimeout bounds a shared load, which outlives the caller that started it
const DefaultLoadTimeout = 10 * time.Second

// Store gets, provisions and updates the license singleton
type Store struct {
	repo    storage.LicenseRepository
	keys    *KeyFile
	logger  *slog.Logger
	metrics *infrastructure.BusinessMetrics
	tracer  trace.Tracer

	group       singleflight.Group
	loadTimeout time.Duration

	cacheTTL time.Duration
	mu       sync.RWMutex
	cached   *domain.License
	cachedAt time.Time
	now      func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithCacheTTL keeps the license in memory for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) { s.cacheTTL = ttl }
}

// WithMetrics records lookups and provisioning
func WithMetrics(m *infrastructure.BusinessMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLoadTimeout bounds the shared get-or-provision call
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// WithClock overrides the time source used for cache expiry
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store. keys may be nil to disable the secrets file.
func NewStore(repo storage.LicenseRepository, keys *KeyFile, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		keys:   keys,
		logger: infrastructure.WithComponent(logger, "license_store"),
		tracer: otel.Tracer(infrastructure.InstrumentationName),
		now:    time.Now,

		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the license, provisioning it when none exists
func (s *Store) Current(ctx context.Context) (*domain.License, error) {
	if lic, ok := s.fromCache(); ok {
		s.metrics.RecordLicenseLookup(ctx, true)
		return lic, nil
	}
	s.metrics.RecordLicenseLookup(ctx, false)

	// Concurrent callers share one load. It runs detached from any single
	// caller so a disconnecting client cannot fail the others.
	ch := s.group.DoChan(loadKey, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		return s.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		lic := res.Val.(*domain.License).Clone()
		return &lic, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Provision makes sure the license exists and has a key
func (s *Store) Provision(ctx context.Context) (*domain.License, error) {
	s.Invalidate()
	lic, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, slog.LevelInfo, "provision", "License ready",
		slog.Bool("is_active", lic.IsActive),
		slog.Int("enabled_modules", len(lic.EnabledModules)),
	)
	return lic, nil
}

// Update changes the active flag and the enabled modules
func (s *Store) Update(ctx context.Context, upd domain.LicenseUpdate) (*domain.License, error) {
	ctx, span := s.tracer.Start(ctx, "license.update")
	defer span.End()

	if _, err := s.Current(ctx); err != nil {
		return nil, endSpan(span, err)
	}

	lic, err := s.repo.Update(ctx, upd)
	s.Invalidate()
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("update license: %w", err))
	}

	s.logAction(ctx, slog.LevelInfo, "update", "License updated",
		slog.Bool("is_active", lic.IsActive),
		slog.Any("enabled_modules", lic.EnabledModules),
	)
	return lic, nil
}

// ReissueKey replaces the license key and rewrites the secrets file
func (s *Store) ReissueKey(ctx context.Context) (*domain.License, error) {
	ctx, span := s.tracer.Start(ctx, "license.reissue")
	defer span.End()

	if _, err := s.Current(ctx); err != nil {
		return nil, endSpan(span, err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, endSpan(span, err)
	}

	lic, err := s.repo.ReplaceKey(ctx, key)
	s.Invalidate()
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("reissue license key: %w", err))
	}

	if err := s.keys.RewriteKey(key); err != nil {
		s.mirrorFailed(ctx, err)
	}
	s.metrics.RecordLicenseProvisioned(ctx, ProvisionReissued)
	s.logAction(ctx, slog.LevelInfo, "reissue", "License key reissued")
	return lic, nil
}

// Invalidate drops the cached license
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

func (s *Store) fromCache() (*domain.License, bool) {
	if s.cacheTTL <= 0 {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil || s.now().Sub(s.cachedAt) >= s.cacheTTL {
		return nil, false
	}
	lic := s.cached.Clone()
	return &lic, true
}

func (s *Store) remember(lic *domain.License) {
	if s.cacheTTL <= 0 {
		return
	}
	c := lic.Clone()
	s.mu.Lock()
	s.cached = &c
	s.cachedAt = s.now()
	s.mu.Unlock()
}

func (s *Store) load(ctx context.Context) (*domain.License, error) {
	ctx, span := s.tracer.Start(ctx, "license.load")
	defer span.End()

	lic, err := s.repo.Get(ctx)
	switch {
	case storage.IsNotFound(err):
		lic, err = s.provision(ctx)
	case err != nil:
		err = fmt.Errorf("load license: %w", err)
	case lic.LicenseKey == "":
		lic, err = s.backfill(ctx)
	}
	if err != nil {
		return nil, endSpan(span, err)
	}

	s.remember(lic)
	return lic, nil
}

func (s *Store) provision(ctx context.Context) (*domain.License, error) {
	key, restored, err := s.candidateKey(ctx)
	if err != nil {
		return nil, err
	}

	candidate := domain.License{
		LicenseKey:     key,
		IsActive:       true,
		EnabledModules: domain.AllModules(),
	}
	lic, created, err := s.repo.Ensure(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("provision license: %w", err)
	}

	if !created {
		// another process provisioned first
		if lic.LicenseKey == "" {
			return s.backfill(ctx)
		}
		return lic, nil
	}

	kind := ProvisionCreated
	if restored {
		kind = ProvisionRestored
	}
	s.metrics.RecordLicenseProvisioned(ctx, kind)
	s.logAction(ctx, slog.LevelInfo, "provision", "License provisioned", slog.String("kind", kind))
	s.mirror(ctx, lic.LicenseKey)
	return lic, nil
}

func (s *Store) backfill(ctx context.Context) (*domain.License, error) {
	key, _, err := s.candidateKey(ctx)
	if err != nil {
		return nil, err
	}

	lic, set, err := s.repo.SetKeyIfMissing(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("backfill license key: %w", err)
	}
	if set {
		s.metrics.RecordLicenseProvisioned(ctx, ProvisionBackfilled)
		s.logAction(ctx, slog.LevelInfo, "backfill", "License key backfilled")
		s.mirror(ctx, lic.LicenseKey)
	}
	return lic, nil
}

// candidateKey prefers a well-formed key already in the secrets file
func (s *Store) candidateKey(ctx context.Context) (string, bool, error) {
	existing, err := s.keys.ReadKey()
	if err != nil {
		s.logAction(ctx, slog.LevelWarn, "read_secrets", "Could not read secrets file",
			slog.String("path", s.keys.Path()),
			slog.String("error", err.Error()),
		)
	}
	if existing != "" {
		if err := ValidateKey(existing); err == nil {
			return existing, true, nil
		}
		s.logAction(ctx, slog.LevelWarn, "read_secrets", "Ignoring malformed license key in secrets file",
			slog.String("path", s.keys.Path()),
		)
	}

	key, err := GenerateKey()
	if err != nil {
		return "", false, err
	}
	return key, false, nil
}

func (s *Store) mirror(ctx context.Context, key string) {
	if _, err := s.keys.EnsureKey(key); err != nil {
		s.mirrorFailed(ctx, err)
	}
}

func (s *Store) mirrorFailed(ctx context.Context, err error) {
	s.metrics.RecordLicenseMirrorFailure(ctx)
	s.logAction(ctx, slog.LevelWarn, "mirror", "Could not write license key to secrets file",
		slog.String("path", s.keys.Path()),
		slog.String("error", err.Error()),
	)
}

// logAction logs a license action with trace correlation
func (s *Store) logAction(ctx context.Context, level slog.Level, action, msg string, attrs ...slog.Attr) {
	infrastructure.AddSpanEvent(ctx, "license."+action)
	all := append([]slog.Attr{slog.String("action", action)}, attrs...)
	s.logger.LogAttrs(ctx, level, msg, all...)
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.Bool("license.success", false))
	return err
}
