package access

import (
	"slices"

	apierrors "clinicapi/internal/errors"
	"clinicapi/pkg/contracts/domain"
)

// AuthorizeLicense admits superadmins and anyone while the license is active
func AuthorizeLicense(id domain.Identity, lic domain.License) error {
	if id.IsSuperadmin() {
		return nil
	}
	if !lic.IsActive {
		return apierrors.ErrLicenseInactive
	}
	return nil
}

// AuthorizeModule checks the license scope first, then the personal
// permissions of admins. Other roles are not limited per module.
func AuthorizeModule(id domain.Identity, lic domain.License, module domain.ModuleKey) error {
	if id.IsSuperadmin() {
		return nil
	}
	if !lic.Enables(module) {
		return apierrors.ModuleNotLicensed(module.String())
	}
	if id.Role != domain.RoleAdmin {
		return nil
	}
	if !id.Permissions.Contains(module) {
		return apierrors.InsufficientPermission(module.String())
	}
	return nil
}

// AuthorizeRole admits superadmins and any of the listed roles.
// An empty list admits superadmins only.
func AuthorizeRole(id domain.Identity, roles ...domain.Role) error {
	if id.IsSuperadmin() {
		return nil
	}
	if !slices.Contains(roles, id.Role) {
		return apierrors.ErrForbidden
	}
	return nil
}
