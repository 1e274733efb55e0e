package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"clinicapi/pkg/contracts/domain"
)

// Pinger reports whether a backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// LicenseReader returns the current license
type LicenseReader interface {
	Current(ctx context.Context) (*domain.License, error)
}

// BuildInfo identifies the running binary
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// HealthService provides health check functionality
type HealthService struct {
	build        BuildInfo
	store        Pinger
	licenses     LicenseReader
	checkTimeout time.Duration
	startTime    time.Time
	logger       *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Ready reports whether every dependency passed its check
func (s HealthStatus) Ready() bool {
	return s.Status == "ready"
}

// NewHealthService creates a health service. licenses may be nil.
func NewHealthService(build BuildInfo, store Pinger, licenses LicenseReader, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		build:        build,
		store:        store,
		licenses:     licenses,
		checkTimeout: 2 * time.Second,
		startTime:    time.Now(),
		logger:       logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   hs.build.Version,
	}
}

// ReadinessCheck pings the store and loads the license
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Version:   hs.build.Version,
		Services:  make(map[string]ServiceHealth),
	}

	ctx, cancel := context.WithTimeout(ctx, hs.checkTimeout)
	defer cancel()

	status.Services["database"] = hs.check(ctx, "database", hs.store.Ping)
	if hs.licenses != nil {
		status.Services["license"] = hs.check(ctx, "license", func(ctx context.Context) error {
			_, err := hs.licenses.Current(ctx)
			return err
		})
	}

	for _, service := range status.Services {
		if service.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}
	return status
}

func (hs *HealthService) check(ctx context.Context, name string, fn func(context.Context) error) ServiceHealth {
	if err := fn(ctx); err != nil {
		hs.logger.WarnContext(ctx, "readiness check failed",
			slog.String("dependency", name),
			slog.String("error", err.Error()))
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	return ServiceHealth{Status: "ready"}
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().UTC(),
		Version:   hs.build.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":    hs.build.Version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"uptime":     time.Since(hs.startTime).Seconds(),
		"start_time": hs.startTime.Format(time.RFC3339),
	}
	if hs.build.Commit != "" {
		result["commit"] = hs.build.Commit
	}
	if hs.build.BuildTime != "" {
		result["build_time"] = hs.build.BuildTime
	}
	return result
}
