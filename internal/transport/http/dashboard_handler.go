package http

import (
	"log/slog"
	"net/http"

	"clinicapi/internal/access"
	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

// DashboardHandler summarizes the clinic records the caller can reach
type DashboardHandler struct {
	records  storage.RecordRepository
	bindings []ResourceBinding
	logger   *slog.Logger
}

// NewDashboardHandler creates a dashboard handler over bindings
func NewDashboardHandler(records storage.RecordRepository, bindings []ResourceBinding, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		records:  records,
		bindings: bindings,
		logger:   logger.With(slog.String("handler", "dashboard")),
	}
}

// Routes returns the dashboard endpoint
func (h *DashboardHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/dashboard", Module: domain.ModuleDashboard, Handler: h.Summary},
	}
}

// Summary handles GET /api/dashboard. Modules the caller could not open are
// left out of the counts.
func (h *DashboardHandler) Summary(r *http.Request) (*Result, error) {
	ctx := r.Context()
	rc := access.FromContext(ctx)

	identity, ok := rc.Identity()
	if !ok {
		return nil, apierrors.ErrUnauthenticated
	}
	lic, hasLicense := rc.License()

	counts := make(map[string]int64, len(h.bindings))
	for _, b := range h.bindings {
		if !identity.IsSuperadmin() {
			if !hasLicense || access.AuthorizeModule(identity, lic, b.Module) != nil {
				continue
			}
		}
		n, err := h.records.Count(ctx, b.Collection)
		if err != nil {
			return nil, err
		}
		counts[b.Module.String()] = n
	}

	return OK(map[string]any{"counts": counts}), nil
}
