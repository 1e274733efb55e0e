package http

import (
	"log/slog"
	"net/http"

	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/middleware"
	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

var auditActions = []string{
	string(domain.AuditActionCreate),
	string(domain.AuditActionUpdate),
	string(domain.AuditActionDelete),
	string(domain.AuditActionLogin),
}

// ReportsHandler serves the audit trail
type ReportsHandler struct {
	audit  storage.AuditRepository
	logger *slog.Logger
}

// NewReportsHandler creates a reports handler
func NewReportsHandler(audit storage.AuditRepository, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{
		audit:  audit,
		logger: logger.With(slog.String("handler", "reports")),
	}
}

// Routes returns the report endpoints
func (h *ReportsHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Pattern: "/reports/audit", Module: domain.ModuleReports,
			Roles: []domain.Role{domain.RoleAdmin}, Handler: h.AuditLog},
	}
}

// AuditLog handles GET /api/reports/audit?module=&action=&user=&limit=
func (h *ReportsHandler) AuditLog(r *http.Request) (*Result, error) {
	q := r.URL.Query()

	limit, err := middleware.QueryInt(r, "limit", 1, 1000, 100)
	if err != nil {
		return nil, err
	}
	action, err := middleware.QueryEnum(r, "action", auditActions, "")
	if err != nil {
		return nil, err
	}
	module := q.Get("module")
	if module != "" && module != "auth" && !domain.ModuleKey(module).Valid() {
		return nil, apierrors.ErrValidation("module", "unknown module")
	}

	entries, err := h.audit.List(r.Context(), domain.AuditFilter{
		Module: module,
		Action: domain.AuditAction(action),
		User:   q.Get("user"),
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	return OK(map[string]any{"entries": entries, "count": len(entries)}), nil
}
