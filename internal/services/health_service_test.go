package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/shared/testutil"
	"clinicapi/pkg/contracts/domain"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type licenseFunc func(ctx context.Context) (*domain.License, error)

func (f licenseFunc) Current(ctx context.Context) (*domain.License, error) { return f(ctx) }

func healthy(context.Context) error { return nil }

func TestHealthService_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name       string
		ping       pingFunc
		licenses   LicenseReader
		wantStatus string
		wantDB     string
		wantLic    string
	}{
		{
			name:       "all dependencies ready",
			ping:       healthy,
			licenses:   licenseFunc(func(context.Context) (*domain.License, error) { return testutil.ActiveLicense(), nil }),
			wantStatus: "ready",
			wantDB:     "ready",
			wantLic:    "ready",
		},
		{
			name:       "database down",
			ping:       func(context.Context) error { return errors.New("connection refused") },
			licenses:   licenseFunc(func(context.Context) (*domain.License, error) { return testutil.ActiveLicense(), nil }),
			wantStatus: "not_ready",
			wantDB:     "not_ready",
			wantLic:    "ready",
		},
		{
			name:       "license unavailable",
			ping:       healthy,
			licenses:   licenseFunc(func(context.Context) (*domain.License, error) { return nil, errors.New("boom") }),
			wantStatus: "not_ready",
			wantDB:     "ready",
			wantLic:    "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			svc := NewHealthService(BuildInfo{Version: "v1.2.3"}, tt.ping, tt.licenses, logger)

			status := svc.ReadinessCheck(context.Background())
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, tt.wantStatus == "ready", status.Ready())
			assert.Equal(t, tt.wantDB, status.Services["database"].Status)
			assert.Equal(t, tt.wantLic, status.Services["license"].Status)
			assert.Equal(t, "v1.2.3", status.Version)
		})
	}
}

func TestHealthService_ReadinessLogsFailure(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	svc := NewHealthService(BuildInfo{}, pingFunc(func(context.Context) error {
		return errors.New("no reachable servers")
	}), nil, logger)

	status := svc.ReadinessCheck(context.Background())
	require.Equal(t, "not_ready", status.Status)
	assert.NotContains(t, status.Services, "license")
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "readiness check failed")
	testutil.AssertLogAttr(t, handler, "dependency", "database")
}

func TestHealthService_Liveness(t *testing.T) {
	svc := NewHealthService(BuildInfo{Version: "dev", Commit: "abc123"}, pingFunc(healthy), nil, nil)

	live := svc.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Contains(t, live.Runtime, "goroutines")

	health := svc.HealthCheck(context.Background())
	assert.Equal(t, "ok", health.Status)

	version := svc.Version()
	assert.Equal(t, "dev", version["version"])
	assert.Equal(t, "abc123", version["commit"])
	assert.NotContains(t, version, "build_time")
}
