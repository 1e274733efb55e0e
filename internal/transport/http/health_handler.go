package http

import (
	"net/http"

	"clinicapi/internal/services"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service *services.HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Routes returns the unauthenticated health endpoints
func (h *HealthHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/health", Access: AccessPublic, Handler: h.HealthCheck},
		{Method: http.MethodGet, Pattern: "/health/live", Access: AccessPublic, Handler: h.LivenessCheck},
		{Method: http.MethodGet, Pattern: "/health/ready", Access: AccessPublic, Handler: h.ReadinessCheck},
		{Method: http.MethodGet, Pattern: "/version", Access: AccessPublic, Handler: h.Version},
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(r *http.Request) (*Result, error) {
	return OK(h.service.HealthCheck(r.Context())), nil
}

// ReadinessCheck handles GET /api/health/ready
func (h *HealthHandler) ReadinessCheck(r *http.Request) (*Result, error) {
	status := h.service.ReadinessCheck(r.Context())
	if !status.Ready() {
		return &Result{Status: http.StatusServiceUnavailable, Body: status}, nil
	}
	return OK(status), nil
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(r *http.Request) (*Result, error) {
	return OK(h.service.LivenessCheck(r.Context())), nil
}

// Version handles GET /api/version
func (h *HealthHandler) Version(r *http.Request) (*Result, error) {
	return OK(h.service.Version()), nil
}
