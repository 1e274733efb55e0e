package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"clinicapi/internal/access"
	apierrors "clinicapi/internal/errors"
	"clinicapi/pkg/contracts/domain"
)

// RequireModule admits a request to module. The license must enable the
// module, and admins must also hold it in their personal permissions.
func (g *Gates) RequireModule(module domain.ModuleKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := g.tracer.Start(r.Context(), "gate.module")
			defer span.End()
			span.SetAttributes(attribute.String("access.module", module.String()))
			r = r.WithContext(ctx)

			rc := access.FromContext(ctx)
			identity, ok := rc.Identity()
			if !ok {
				g.reject(w, r, span, GateModule, apierrors.ErrUnauthenticated)
				return
			}
			if identity.IsSuperadmin() {
				g.allow(r, span, GateModule)
				next.ServeHTTP(w, r)
				return
			}

			lic, ok := rc.License()
			if !ok {
				current, err := g.licenses.Current(ctx)
				if err != nil {
					g.reject(w, r, span, GateModule, err)
					return
				}
				lic = *current
			}

			if err := access.AuthorizeModule(identity, lic, module); err != nil {
				g.reject(w, r, span, GateModule, err)
				return
			}

			g.allow(r, span, GateModule)
			next.ServeHTTP(w, r)
		})
	}
}
