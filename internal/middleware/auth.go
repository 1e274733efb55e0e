package middleware

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"clinicapi/internal/access"
	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/storage"
)

// Authenticate verifies the bearer token, loads the live identity and
// attaches it to the request. It is the only gate that sets the identity.
func (g *Gates) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := g.tracer.Start(r.Context(), "gate.authenticate")
		defer span.End()
		r = r.WithContext(ctx)

		token, ok := bearerToken(r)
		if !ok {
			g.reject(w, r, span, GateAuthenticate, apierrors.ErrUnauthenticated)
			return
		}

		claims, err := g.tokens.VerifyAccess(token)
		if err != nil {
			g.logger.DebugContext(ctx, "token rejected", "error", err)
			g.reject(w, r, span, GateAuthenticate, apierrors.ErrUnauthenticated)
			return
		}

		identity, err := g.users.FindIdentity(ctx, claims.ID)
		switch {
		case storage.IsNotFound(err):
			g.reject(w, r, span, GateAuthenticate, apierrors.ErrUnauthenticated)
			return
		case err != nil:
			g.reject(w, r, span, GateAuthenticate, err)
			return
		case !identity.IsActive:
			g.reject(w, r, span, GateAuthenticate, apierrors.ErrUnauthenticated)
			return
		}

		span.SetAttributes(
			attribute.String("user.id", identity.ID),
			attribute.String("user.role", string(identity.Role)),
		)
		g.allow(r, span, GateAuthenticate)

		rc := access.FromContext(ctx).WithIdentity(*identity)
		next.ServeHTTP(w, r.WithContext(access.NewContext(ctx, rc)))
	})
}

// bearerToken extracts the token of an "Authorization: Bearer" header
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
