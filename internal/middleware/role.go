package middleware

import (
	"net/http"

	"clinicapi/internal/access"
	apierrors "clinicapi/internal/errors"
	"clinicapi/pkg/contracts/domain"
)

// RequireRole admits superadmins and the listed roles. With no roles only
// superadmins pass.
func (g *Gates) RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := g.tracer.Start(r.Context(), "gate.role")
			defer span.End()
			r = r.WithContext(ctx)

			identity, ok := access.IdentityFrom(ctx)
			if !ok {
				g.reject(w, r, span, GateRole, apierrors.ErrUnauthenticated)
				return
			}
			if err := access.AuthorizeRole(identity, roles...); err != nil {
				g.reject(w, r, span, GateRole, err)
				return
			}

			g.allow(r, span, GateRole)
			next.ServeHTTP(w, r)
		})
	}
}
