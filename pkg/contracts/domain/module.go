// Package domain contains the core domain models for the clinic API.
// These types are shared by the gates, the stores and the HTTP layer.
package domain

import (
	"fmt"
	"slices"
)

// ModuleKey identifies a licensable clinic feature area
type ModuleKey string

const (
	ModuleDashboard     ModuleKey = "dashboard"
	ModulePatients      ModuleKey = "patients"
	ModuleAppointments  ModuleKey = "appointments"
	ModuleDentalChart   ModuleKey = "dental-chart"
	ModuleTreatments    ModuleKey = "treatments"
	ModulePrescriptions ModuleKey = "prescriptions"
	ModuleLabWork       ModuleKey = "lab-work"
	ModuleBilling       ModuleKey = "billing"
	ModuleInventory     ModuleKey = "inventory"
	ModuleStaff         ModuleKey = "staff"
	ModuleDentists      ModuleKey = "dentists"
	ModuleReports       ModuleKey = "reports"
	ModuleDocuments     ModuleKey = "documents"
	ModuleSettings      ModuleKey = "settings"
)

var allModules = []ModuleKey{
	ModuleDashboard,
	ModulePatients,
	ModuleAppointments,
	ModuleDentalChart,
	ModuleTreatments,
	ModulePrescriptions,
	ModuleLabWork,
	ModuleBilling,
	ModuleInventory,
	ModuleStaff,
	ModuleDentists,
	ModuleReports,
	ModuleDocuments,
	ModuleSettings,
}

// AllModules returns the full module vocabulary in canonical order.
// The returned slice is a copy.
func AllModules() ModuleSet {
	return slices.Clone(allModules)
}

// Valid reports whether m belongs to the module vocabulary
func (m ModuleKey) Valid() bool {
	return slices.Contains(allModules, m)
}

func (m ModuleKey) String() string {
	return string(m)
}

// ParseModuleKey converts a wire value into a ModuleKey
func ParseModuleKey(s string) (ModuleKey, error) {
	m := ModuleKey(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown module key %q", s)
	}
	return m, nil
}

// ModuleSet is an ordered set of module keys
type ModuleSet []ModuleKey

// NewModuleSet builds a set from keys, dropping duplicates and keeping first-seen order
func NewModuleSet(keys ...ModuleKey) ModuleSet {
	set := make(ModuleSet, 0, len(keys))
	for _, k := range keys {
		if !slices.Contains(set, k) {
			set = append(set, k)
		}
	}
	return set
}

// ParseModuleSet converts wire values into a ModuleSet, rejecting unknown keys
func ParseModuleSet(values []string) (ModuleSet, error) {
	keys := make([]ModuleKey, 0, len(values))
	for _, v := range values {
		k, err := ParseModuleKey(v)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return NewModuleSet(keys...), nil
}

// Contains reports whether the set holds m
func (s ModuleSet) Contains(m ModuleKey) bool {
	return slices.Contains(s, m)
}

// Clone returns an independent copy of the set
func (s ModuleSet) Clone() ModuleSet {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}
