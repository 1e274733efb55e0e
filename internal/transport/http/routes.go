package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinicapi/internal/audit"
	"clinicapi/internal/middleware"
	"clinicapi/pkg/contracts/domain"
)

// Access selects which gates a route sits behind
type Access int

const (
	// AccessLicensed requires authentication and an active license
	AccessLicensed Access = iota
	// AccessAuthenticated requires authentication only
	AccessAuthenticated
	// AccessPublic requires nothing
	AccessPublic
)

// SuperadminOnly is a role list that admits superadmins alone
var SuperadminOnly = []domain.Role{}

// Route declares one endpoint and the gates in front of it
type Route struct {
	Method  string
	Pattern string
	Access  Access
	// Module adds a module gate when set. It also names the audited module.
	Module domain.ModuleKey
	// Roles adds a role gate when non-nil
	Roles []domain.Role
	// Action enables auditing when set
	Action       domain.AuditAction
	ResourceType string
	Handler      Endpoint
}

func (rt Route) binding() *audit.Binding {
	if rt.Action == "" {
		return nil
	}
	return &audit.Binding{
		Action:       rt.Action,
		Module:       rt.Module.String(),
		ResourceType: rt.ResourceType,
	}
}

func (rt Route) gates(g *middleware.Gates) []func(http.Handler) http.Handler {
	var chain []func(http.Handler) http.Handler
	if rt.Module != "" {
		chain = append(chain, g.RequireModule(rt.Module))
	}
	if rt.Roles != nil {
		chain = append(chain, g.RequireRole(rt.Roles...))
	}
	return chain
}

// Mount registers routes on r. Authenticated and licensed routes are
// grouped behind Authenticate and RequireLicense so each request passes
// every gate at most once.
func Mount(r chi.Router, g *middleware.Gates, adapter *Adapter, routes []Route) {
	byAccess := make(map[Access][]Route)
	for _, rt := range routes {
		byAccess[rt.Access] = append(byAccess[rt.Access], rt)
	}

	mount := func(r chi.Router, routes []Route) {
		for _, rt := range routes {
			r.With(rt.gates(g)...).Method(rt.Method, rt.Pattern, adapter.Handle(rt.binding(), rt.Handler))
		}
	}

	mount(r, byAccess[AccessPublic])
	r.Group(func(r chi.Router) {
		r.Use(g.Authenticate)
		mount(r, byAccess[AccessAuthenticated])

		r.Group(func(r chi.Router) {
			r.Use(g.RequireLicense)
			mount(r, byAccess[AccessLicensed])
		})
	})
}

// ResourceBinding maps a clinic data module onto its record collection
type ResourceBinding struct {
	Module       domain.ModuleKey
	Collection   string
	ResourceType string
	// WriteRoles restricts create, update and delete when non-nil
	WriteRoles []domain.Role
}

// ResourceBindings lists the data modules served as clinic records
var ResourceBindings = []ResourceBinding{
	{Module: domain.ModulePatients, Collection: "patients", ResourceType: "Patient"},
	{Module: domain.ModuleAppointments, Collection: "appointments", ResourceType: "Appointment"},
	{Module: domain.ModuleDentalChart, Collection: "dentalcharts", ResourceType: "DentalChart"},
	{Module: domain.ModuleTreatments, Collection: "treatments", ResourceType: "Treatment"},
	{Module: domain.ModulePrescriptions, Collection: "prescriptions", ResourceType: "Prescription"},
	{Module: domain.ModuleLabWork, Collection: "labworks", ResourceType: "LabWork"},
	{Module: domain.ModuleBilling, Collection: "invoices", ResourceType: "Invoice"},
	{Module: domain.ModuleInventory, Collection: "inventoryitems", ResourceType: "InventoryItem"},
	{Module: domain.ModuleDocuments, Collection: "documents", ResourceType: "Document"},
	{Module: domain.ModuleDentists, Collection: "dentists", ResourceType: "Dentist", WriteRoles: []domain.Role{domain.RoleAdmin}},
	{Module: domain.ModuleStaff, Collection: "staff", ResourceType: "Staff", WriteRoles: []domain.Role{domain.RoleAdmin}},
}

// RecordRoutes generates list, get, create, update and delete routes for
// each binding
func RecordRoutes(h *RecordsHandler, bindings []ResourceBinding) []Route {
	routes := make([]Route, 0, len(bindings)*5)
	for _, b := range bindings {
		base := "/" + b.Module.String()
		item := base + "/{id}"
		routes = append(routes,
			Route{Method: http.MethodGet, Pattern: base, Module: b.Module, Handler: h.List(b.Collection)},
			Route{Method: http.MethodGet, Pattern: item, Module: b.Module, Handler: h.Get(b.Collection)},
			Route{Method: http.MethodPost, Pattern: base, Module: b.Module, Roles: b.WriteRoles,
				Action: domain.AuditActionCreate, ResourceType: b.ResourceType, Handler: h.Create(b.Collection)},
			Route{Method: http.MethodPut, Pattern: item, Module: b.Module, Roles: b.WriteRoles,
				Action: domain.AuditActionUpdate, ResourceType: b.ResourceType, Handler: h.Update(b.Collection)},
			Route{Method: http.MethodDelete, Pattern: item, Module: b.Module, Roles: b.WriteRoles,
				Action: domain.AuditActionDelete, ResourceType: b.ResourceType, Handler: h.Delete(b.Collection)},
		)
	}
	return routes
}
