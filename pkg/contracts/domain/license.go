package domain

import "time"

// License is the deployment-wide licensing record. At most one exists.
type License struct {
	LicenseKey     string    `json:"licenseKey" validate:"omitempty,hexadecimal,len=48,uppercase"`
	IsActive       bool      `json:"isActive"`
	EnabledModules ModuleSet `json:"enabledModules"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Unrestricted reports whether every module is implicitly enabled.
// An empty EnabledModules set means no restriction.
func (l License) Unrestricted() bool {
	return len(l.EnabledModules) == 0
}

// Enables reports whether the license covers module m
func (l License) Enables(m ModuleKey) bool {
	return l.Unrestricted() || l.EnabledModules.Contains(m)
}

// Clone returns a deep copy of the license
func (l License) Clone() License {
	l.EnabledModules = l.EnabledModules.Clone()
	return l
}

// LicenseUpdate is a partial update of the license flags. Nil fields are left unchanged.
type LicenseUpdate struct {
	IsActive       *bool
	EnabledModules *ModuleSet
}

// LicenseStatus is the key-less view of the license exposed to every authenticated caller
type LicenseStatus struct {
	IsActive       bool      `json:"isActive"`
	EnabledModules ModuleSet `json:"enabledModules"`
	Unrestricted   bool      `json:"unrestricted"`
}

// Status returns the key-less view of l
func (l License) Status() LicenseStatus {
	modules := l.EnabledModules.Clone()
	if modules == nil {
		modules = ModuleSet{}
	}
	return LicenseStatus{
		IsActive:       l.IsActive,
		EnabledModules: modules,
		Unrestricted:   l.Unrestricted(),
	}
}
