package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/infrastructure"
)

// Gate names used in spans and decision metrics
const (
	GateAuthenticate = "authenticate"
	GateLicense      = "license"
	GateModule       = "module"
	GateRole         = "role"
)

// Decision outcomes
const (
	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
	OutcomeError = "error"
)

// GatesConfig holds the dependencies of the access gates
type GatesConfig struct {
	Tokens       TokenVerifier
	Users        IdentityLookup
	Licenses     LicenseProvider
	ErrorHandler *apierrors.ErrorHandler
	Metrics      *infrastructure.BusinessMetrics
	Logger       *slog.Logger
}

// Gates builds the access control middleware. Each gate either passes the
// request on or writes a problem response and stops the chain.
type Gates struct {
	tokens   TokenVerifier
	users    IdentityLookup
	licenses LicenseProvider
	errors   *apierrors.ErrorHandler
	metrics  *infrastructure.BusinessMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewGates creates the access gates
func NewGates(cfg GatesConfig) *Gates {
	return &Gates{
		tokens:   cfg.Tokens,
		users:    cfg.Users,
		licenses: cfg.Licenses,
		errors:   cfg.ErrorHandler,
		metrics:  cfg.Metrics,
		logger:   infrastructure.WithComponent(cfg.Logger, "access_gates"),
		tracer:   otel.Tracer(infrastructure.InstrumentationName),
	}
}

// allow records a passing decision
func (g *Gates) allow(r *http.Request, span trace.Span, gate string) {
	span.SetAttributes(attribute.String("access.outcome", OutcomeAllow))
	g.metrics.RecordGateDecision(r.Context(), gate, OutcomeAllow)
}

// reject records a denial or fault and writes the problem response
func (g *Gates) reject(w http.ResponseWriter, r *http.Request, span trace.Span, gate string, err error) {
	outcome := OutcomeDeny
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		outcome = OutcomeError
		span.RecordError(err)
	}

	span.SetAttributes(attribute.String("access.outcome", outcome))
	span.SetStatus(codes.Error, err.Error())
	g.metrics.RecordGateDecision(r.Context(), gate, outcome)
	g.errors.HandleError(w, r, err)
}
