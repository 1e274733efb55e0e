// Package access holds the per-request authorization state and the decision
// rules shared by the gates.
//
// A RequestContext is immutable. Gates derive a new value with WithIdentity
// or WithLicense and attach it to the request's context.Context; nothing
// mutates a value already attached.
package access

import (
	"context"

	"clinicapi/pkg/contracts/domain"
)

type ctxKey struct{}

// RequestContext carries what the gates learned about a request
type RequestContext struct {
	identity *domain.Identity
	license  *domain.License
}

// Identity returns a copy of the authenticated identity, if any
func (rc RequestContext) Identity() (domain.Identity, bool) {
	if rc.identity == nil {
		return domain.Identity{}, false
	}
	return rc.identity.Clone(), true
}

// License returns a copy of the license cached for this request, if any
func (rc RequestContext) License() (domain.License, bool) {
	if rc.license == nil {
		return domain.License{}, false
	}
	return rc.license.Clone(), true
}

// WithIdentity returns a new RequestContext carrying id
func (rc RequestContext) WithIdentity(id domain.Identity) RequestContext {
	c := id.Clone()
	rc.identity = &c
	return rc
}

// WithLicense returns a new RequestContext carrying lic
func (rc RequestContext) WithLicense(lic domain.License) RequestContext {
	c := lic.Clone()
	rc.license = &c
	return rc
}

// FromContext returns the RequestContext attached to ctx, or the zero value
func FromContext(ctx context.Context) RequestContext {
	if rc, ok := ctx.Value(ctxKey{}).(RequestContext); ok {
		return rc
	}
	return RequestContext{}
}

// NewContext attaches rc to ctx
func NewContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// IdentityFrom is a shorthand for FromContext(ctx).Identity()
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	return FromContext(ctx).Identity()
}

// LicenseFrom is a shorthand for FromContext(ctx).License()
func LicenseFrom(ctx context.Context) (domain.License, bool) {
	return FromContext(ctx).License()
}
