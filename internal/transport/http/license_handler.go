package http

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/middleware"
	"clinicapi/pkg/contracts/domain"
)

// LicenseService is the license store as seen by the handlers
type LicenseService interface {
	Current(ctx context.Context) (*domain.License, error)
	Update(ctx context.Context, upd domain.LicenseUpdate) (*domain.License, error)
	ReissueKey(ctx context.Context) (*domain.License, error)
}

// LicenseUpdateRequest is the body of PUT /api/license
type LicenseUpdateRequest struct {
	IsActive       *bool     `json:"isActive"`
	EnabledModules *[]string `json:"enabledModules"`
}

// LicenseHandler exposes the license singleton
type LicenseHandler struct {
	service   LicenseService
	validator *middleware.ValidationMiddleware
	logger    *slog.Logger
}

// NewLicenseHandler creates a license handler
func NewLicenseHandler(service LicenseService, validator *middleware.ValidationMiddleware, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:   service,
		validator: validator,
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the license endpoints. Administration is superadmin only
// and stays reachable while the license is inactive.
func (h *LicenseHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/license/status", Access: AccessAuthenticated, Handler: h.GetStatus},
		{Method: http.MethodGet, Pattern: "/license", Access: AccessAuthenticated,
			Roles: SuperadminOnly, Handler: h.Get},
		{Method: http.MethodPut, Pattern: "/license", Access: AccessAuthenticated,
			Module: domain.ModuleSettings, Roles: SuperadminOnly,
			Action: domain.AuditActionUpdate, ResourceType: "License", Handler: h.Update},
		{Method: http.MethodPost, Pattern: "/license/reissue", Access: AccessAuthenticated,
			Module: domain.ModuleSettings, Roles: SuperadminOnly,
			Action: domain.AuditActionUpdate, ResourceType: "License", Handler: h.Reissue},
	}
}

// GetStatus handles GET /api/license/status. The key is never included.
func (h *LicenseHandler) GetStatus(r *http.Request) (*Result, error) {
	lic, err := h.service.Current(r.Context())
	if err != nil {
		return nil, err
	}
	return OK(lic.Status()), nil
}

// Get handles GET /api/license
func (h *LicenseHandler) Get(r *http.Request) (*Result, error) {
	lic, err := h.service.Current(r.Context())
	if err != nil {
		return nil, err
	}
	return OK(lic), nil
}

// Update handles PUT /api/license
func (h *LicenseHandler) Update(r *http.Request) (*Result, error) {
	var req LicenseUpdateRequest
	if err := h.validator.Decode(r, &req); err != nil {
		return nil, err
	}

	upd := domain.LicenseUpdate{IsActive: req.IsActive}
	if req.EnabledModules != nil {
		modules, err := domain.ParseModuleSet(*req.EnabledModules)
		if err != nil {
			return nil, apierrors.ErrValidation("enabledModules", err.Error())
		}
		upd.EnabledModules = &modules
	}
	if upd.IsActive == nil && upd.EnabledModules == nil {
		return nil, apierrors.ErrValidation("body", "isActive or enabledModules is required")
	}

	lic, err := h.service.Update(r.Context(), upd)
	if err != nil {
		return nil, err
	}

	h.logger.InfoContext(r.Context(), "license updated",
		slog.Bool("is_active", lic.IsActive),
		slog.Int("enabled_modules", len(lic.EnabledModules)))
	return OK(lic), nil
}

// Reissue handles POST /api/license/reissue
func (h *LicenseHandler) Reissue(r *http.Request) (*Result, error) {
	lic, err := h.service.ReissueKey(r.Context())
	if err != nil {
		return nil, err
	}
	h.logger.InfoContext(r.Context(), "license key reissued")
	return OK(lic), nil
}
