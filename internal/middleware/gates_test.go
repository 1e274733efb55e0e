package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/access"
	"clinicapi/internal/auth"
	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/shared/testutil"
	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

const (
	testAccessSecret  = "access-secret-0123456789"
	testRefreshSecret = "refresh-secret-0123456789"
)

// fakeLicenses serves a fixed license and counts lookups
type fakeLicenses struct {
	license *domain.License
	err     error
	calls   atomic.Int32
}

func (f *fakeLicenses) Current(context.Context) (*domain.License, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	lic := f.license.Clone()
	return &lic, nil
}

// failingUsers fails every lookup with a storage fault
type failingUsers struct{}

func (failingUsers) FindIdentity(context.Context, string) (*domain.Identity, error) {
	return nil, errors.New("connection reset")
}

type gateFixture struct {
	gates    *Gates
	tokens   *auth.TokenIssuer
	users    *storage.MemoryUserRepository
	licenses *fakeLicenses
}

func newGateFixture(t *testing.T, lic *domain.License) *gateFixture {
	t.Helper()
	tokens, err := auth.NewTokenIssuer(testAccessSecret, testRefreshSecret)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &gateFixture{
		tokens:   tokens,
		users:    storage.NewMemoryUserRepository(),
		licenses: &fakeLicenses{license: lic},
	}
	f.gates = NewGates(GatesConfig{
		Tokens:       tokens,
		Users:        f.users,
		Licenses:     f.licenses,
		ErrorHandler: apierrors.NewErrorHandler(logger, false),
		Logger:       logger,
	})
	return f
}

// addUser stores a user and returns a bearer token for it
func (f *gateFixture) addUser(t *testing.T, email string, role domain.Role, active bool, perms ...domain.ModuleKey) string {
	t.Helper()
	user := &domain.User{
		Identity: domain.Identity{Role: role, IsActive: active, Permissions: domain.NewModuleSet(perms...)},
		Name:     email,
		Email:    email,
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	token, err := f.tokens.IssueAccessToken(user.ID, role)
	require.NoError(t, err)
	return token
}

// protected builds the standard protected chain around a recording handler.
// The role gate is added only for a non-nil role list, as the route table does.
func (f *gateFixture) protected(module domain.ModuleKey, roles ...domain.Role) (http.Handler, *access.RequestContext) {
	seen := &access.RequestContext{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = access.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	r := chi.NewRouter()
	r.Use(f.gates.Authenticate, f.gates.RequireLicense)
	chain := []func(http.Handler) http.Handler{f.gates.RequireModule(module)}
	if roles != nil {
		chain = append(chain, f.gates.RequireRole(roles...))
	}
	r.With(chain...).Get("/resource", handler)
	return r, seen
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	code, _ := body["error_code"].(string)
	return code
}

func TestAuthenticate(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense())
	active := f.addUser(t, "active@clinic.example", domain.RoleDentist, true)
	inactive := f.addUser(t, "inactive@clinic.example", domain.RoleDentist, false)
	refresh, err := f.tokens.IssueRefreshToken("someone")
	require.NoError(t, err)
	orphan, err := f.tokens.IssueAccessToken("deleted-user", domain.RoleAdmin)
	require.NoError(t, err)

	h, _ := f.protected(domain.ModulePatients, domain.RoleDentist)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + active, http.StatusOK},
		{"lower case scheme", "bearer " + active, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + active, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"unknown user", "Bearer " + orphan, http.StatusUnauthorized},
		{"inactive user", "Bearer " + inactive, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/resource", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, apierrors.CodeUnauthenticated, errorCode(t, rec))
			}
		})
	}
}

func TestAuthenticateLookupFault(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense())
	f.gates.users = failingUsers{}
	token, err := f.tokens.IssueAccessToken("u1", domain.RoleAdmin)
	require.NoError(t, err)

	h, _ := f.protected(domain.ModulePatients)
	rec := serve(h, token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense())
	token := f.addUser(t, "admin@clinic.example", domain.RoleAdmin, true, domain.ModulePatients)

	h, seen := f.protected(domain.ModulePatients)
	rec := serve(h, token)
	require.Equal(t, http.StatusOK, rec.Code)

	identity, ok := seen.Identity()
	require.True(t, ok)
	assert.Equal(t, domain.RoleAdmin, identity.Role)
	assert.Equal(t, domain.NewModuleSet(domain.ModulePatients), identity.Permissions)

	lic, ok := seen.License()
	require.True(t, ok, "license gate caches the license")
	assert.True(t, lic.IsActive)
	assert.Equal(t, int32(1), f.licenses.calls.Load(), "module gate reuses the cached license")
}

func TestAccessDecisions(t *testing.T) {
	tests := []struct {
		name    string
		license *domain.License
		role    domain.Role
		perms   []domain.ModuleKey
		module  domain.ModuleKey
		roles   []domain.Role
		status  int
		code    string
	}{
		{
			name:    "superadmin bypasses an inactive license",
			license: testutil.InactiveLicense(),
			role:    domain.RoleSuperadmin,
			module:  domain.ModuleBilling,
			status:  http.StatusOK,
		},
		{
			name:    "superadmin bypasses an unlicensed module",
			license: testutil.ActiveLicense(domain.ModulePatients),
			role:    domain.RoleSuperadmin,
			module:  domain.ModuleBilling,
			status:  http.StatusOK,
		},
		{
			name:    "inactive license",
			license: testutil.InactiveLicense(),
			role:    domain.RoleDentist,
			module:  domain.ModulePatients,
			roles:   []domain.Role{domain.RoleDentist},
			status:  http.StatusForbidden,
			code:    apierrors.CodeLicenseInactive,
		},
		{
			name:    "module not licensed",
			license: testutil.ActiveLicense(domain.ModulePatients),
			role:    domain.RoleDentist,
			module:  domain.ModuleBilling,
			roles:   []domain.Role{domain.RoleDentist},
			status:  http.StatusForbidden,
			code:    apierrors.CodeModuleNotLicensed,
		},
		{
			name:    "unrestricted license enables every module",
			license: testutil.ActiveLicense(),
			role:    domain.RoleReceptionist,
			module:  domain.ModuleInventory,
			roles:   []domain.Role{domain.RoleReceptionist},
			status:  http.StatusOK,
		},
		{
			name:    "admin without personal permission",
			license: testutil.ActiveLicense(),
			role:    domain.RoleAdmin,
			perms:   []domain.ModuleKey{domain.ModulePatients},
			module:  domain.ModuleBilling,
			roles:   []domain.Role{domain.RoleAdmin},
			status:  http.StatusForbidden,
			code:    apierrors.CodeInsufficientPermission,
		},
		{
			name:    "admin with personal permission",
			license: testutil.ActiveLicense(),
			role:    domain.RoleAdmin,
			perms:   []domain.ModuleKey{domain.ModuleBilling},
			module:  domain.ModuleBilling,
			roles:   []domain.Role{domain.RoleAdmin},
			status:  http.StatusOK,
		},
		{
			name:    "license check precedes personal permission",
			license: testutil.ActiveLicense(domain.ModulePatients),
			role:    domain.RoleAdmin,
			perms:   []domain.ModuleKey{domain.ModuleBilling},
			module:  domain.ModuleBilling,
			roles:   []domain.Role{domain.RoleAdmin},
			status:  http.StatusForbidden,
			code:    apierrors.CodeModuleNotLicensed,
		},
		{
			name:    "dentist needs no personal permission",
			license: testutil.ActiveLicense(),
			role:    domain.RoleDentist,
			module:  domain.ModuleTreatments,
			roles:   []domain.Role{domain.RoleDentist},
			status:  http.StatusOK,
		},
		{
			name:    "role not listed",
			license: testutil.ActiveLicense(),
			role:    domain.RoleReceptionist,
			module:  domain.ModulePatients,
			roles:   []domain.Role{domain.RoleAdmin, domain.RoleDentist},
			status:  http.StatusForbidden,
			code:    apierrors.CodeForbidden,
		},
		{
			name:    "no role gate admits a permitted admin",
			license: testutil.ActiveLicense(),
			role:    domain.RoleAdmin,
			perms:   []domain.ModuleKey{domain.ModuleSettings},
			module:  domain.ModuleSettings,
			status:  http.StatusOK,
		},
		{
			name:    "empty role list admits superadmin only",
			license: testutil.ActiveLicense(),
			role:    domain.RoleAdmin,
			perms:   []domain.ModuleKey{domain.ModuleSettings},
			module:  domain.ModuleSettings,
			roles:   []domain.Role{},
			status:  http.StatusForbidden,
			code:    apierrors.CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t, tt.license)
			token := f.addUser(t, "user@clinic.example", tt.role, true, tt.perms...)

			h, _ := f.protected(tt.module, tt.roles...)
			rec := serve(h, token)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, rec))
			}
		})
	}
}

func TestModuleNotLicensedNamesModule(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense(domain.ModulePatients))
	token := f.addUser(t, "d@clinic.example", domain.RoleDentist, true)

	h, _ := f.protected(domain.ModuleLabWork, domain.RoleDentist)
	rec := serve(h, token)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "lab-work", details["module"])
}

func TestSuperadminSkipsLicenseLookup(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense())
	token := f.addUser(t, "root@clinic.example", domain.RoleSuperadmin, true)

	h, seen := f.protected(domain.ModuleSettings)
	rec := serve(h, token)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int32(0), f.licenses.calls.Load())
	_, ok := seen.License()
	assert.False(t, ok)
}

func TestLicenseLookupFault(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense())
	f.licenses.err = errors.New("store offline")
	token := f.addUser(t, "d@clinic.example", domain.RoleDentist, true)

	h, _ := f.protected(domain.ModulePatients, domain.RoleDentist)
	rec := serve(h, token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestModuleGateLoadsLicenseWhenNotCached(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense(domain.ModulePatients))
	token := f.addUser(t, "d@clinic.example", domain.RoleDentist, true)

	r := chi.NewRouter()
	r.Use(f.gates.Authenticate)
	r.With(f.gates.RequireModule(domain.ModuleBilling)).Get("/resource", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := serve(r, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apierrors.CodeModuleNotLicensed, errorCode(t, rec))
	assert.Equal(t, int32(1), f.licenses.calls.Load())
}

func TestGatesWithoutIdentity(t *testing.T) {
	f := newGateFixture(t, testutil.ActiveLicense())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	handlers := map[string]http.Handler{
		"license": f.gates.RequireLicense(ok),
		"module":  f.gates.RequireModule(domain.ModulePatients)(ok),
		"role":    f.gates.RequireRole(domain.RoleAdmin)(ok),
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
