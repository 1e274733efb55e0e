package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"clinicapi/internal/access"
	apierrors "clinicapi/internal/errors"
)

// RequireLicense admits superadmins unconditionally and everyone else only
// while the license is active. The license it loaded is cached on the
// request for the module gate.
func (g *Gates) RequireLicense(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "gate.license")
		defer span.End()
		r = r.WithContext(ctx)

		rc := access.FromContext(ctx)
		identity, ok := rc.Identity()
		if !ok {
			g.reject(w, r, span, GateLicense, apierrors.ErrUnauthenticated)
			return
		}
		if identity.IsSuperadmin() {
			span.SetAttributes(attribute.Bool("access.bypass", true))
			g.allow(r, span, GateLicense)
			next.ServeHTTP(w, r)
			return
		}

		lic, err := g.licenses.Current(ctx)
		if err != nil {
			g.reject(w, r, span, GateLicense, err)
			return
		}
		if err := access.AuthorizeLicense(identity, *lic); err != nil {
			g.reject(w, r, span, GateLicense, err)
			return
		}

		g.allow(r, span, GateLicense)
		next.ServeHTTP(w, r.WithContext(access.NewContext(ctx, rc.WithLicense(*lic))))
	})
}
