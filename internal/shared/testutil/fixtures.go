package testutil

import (
	"clinicapi/pkg/contracts/domain"
)

// TestLicenseKey is a well-formed 48 character upper-case hex key
const TestLicenseKey = "0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF"

// Identity returns an active identity with the given role and personal permissions
func Identity(id string, role domain.Role, permissions ...domain.ModuleKey) domain.Identity {
	return domain.Identity{
		ID:          id,
		Role:        role,
		IsActive:    true,
		Permissions: domain.NewModuleSet(permissions...),
	}
}

// ActiveLicense returns an active license enabling the given modules.
// No modules means unrestricted.
func ActiveLicense(modules ...domain.ModuleKey) *domain.License {
	return &domain.License{
		LicenseKey:     TestLicenseKey,
		IsActive:       true,
		EnabledModules: domain.NewModuleSet(modules...),
	}
}

// InactiveLicense returns a deactivated license enabling every module
func InactiveLicense() *domain.License {
	return &domain.License{
		LicenseKey:     TestLicenseKey,
		IsActive:       false,
		EnabledModules: domain.AllModules(),
	}
}
