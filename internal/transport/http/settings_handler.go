package http

import (
	"log/slog"
	"net/http"

	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

// SettingsHandler serves the clinic settings document
type SettingsHandler struct {
	settings storage.SettingsRepository
	logger   *slog.Logger
}

// NewSettingsHandler creates a settings handler
func NewSettingsHandler(settings storage.SettingsRepository, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger.With(slog.String("handler", "settings")),
	}
}

// Routes returns the settings endpoints
func (h *SettingsHandler) Routes() []Route {
	admins := []domain.Role{domain.RoleAdmin}
	return []Route{
		{Method: http.MethodGet, Pattern: "/settings", Module: domain.ModuleSettings, Roles: admins, Handler: h.Get},
		{Method: http.MethodPut, Pattern: "/settings", Module: domain.ModuleSettings, Roles: admins,
			Action: domain.AuditActionUpdate, ResourceType: "Settings", Handler: h.Put},
	}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(r *http.Request) (*Result, error) {
	doc, err := h.settings.Get(r.Context())
	if err != nil {
		return nil, err
	}
	return OK(doc), nil
}

// Put handles PUT /api/settings
func (h *SettingsHandler) Put(r *http.Request) (*Result, error) {
	doc, err := decodeDocument(r)
	if err != nil {
		return nil, err
	}
	stored, err := h.settings.Put(r.Context(), storage.StripSystemFields(doc))
	if err != nil {
		return nil, err
	}
	return OK(stored), nil
}
