package http

import (
	"context"
	"log/slog"
	"net/http"

	"clinicapi/internal/access"
	"clinicapi/internal/auth"
	apierrors "clinicapi/internal/errors"
	"clinicapi/internal/infrastructure"
	"clinicapi/internal/middleware"
	"clinicapi/internal/storage"
	"clinicapi/pkg/contracts/domain"
)

// Login outcomes
const (
	loginSuccess  = "success"
	loginRejected = "rejected"
)

var errBadCredentials = apierrors.New(http.StatusUnauthorized, apierrors.CodeUnauthenticated, "Invalid email or password")

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the body of POST /api/auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// UserView is the public view of an account
type UserView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Role        domain.Role      `json:"role"`
	Permissions domain.ModuleSet `json:"permissions"`
}

// LoginResponse carries a token pair and the signed-in user
type LoginResponse struct {
	auth.TokenPair
	User UserView `json:"user"`
}

// AuthHandler handles sign-in and token refresh
type AuthHandler struct {
	users     storage.UserRepository
	tokens    *auth.TokenIssuer
	validator *middleware.ValidationMiddleware
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger
}

// NewAuthHandler creates an auth handler
func NewAuthHandler(users storage.UserRepository, tokens *auth.TokenIssuer, validator *middleware.ValidationMiddleware,
	metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		tokens:    tokens,
		validator: validator,
		metrics:   metrics,
		logger:    logger.With(slog.String("handler", "auth")),
	}
}

// Routes returns the auth endpoints
func (h *AuthHandler) Routes() []Route {
	return []Route{
		{Method: http.MethodPost, Pattern: "/auth/login", Access: AccessPublic,
			Action: domain.AuditActionLogin, ResourceType: "User", Handler: h.Login},
		{Method: http.MethodPost, Pattern: "/auth/refresh", Access: AccessPublic, Handler: h.Refresh},
		{Method: http.MethodGet, Pattern: "/auth/me", Access: AccessAuthenticated, Handler: h.Me},
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(r *http.Request) (*Result, error) {
	ctx := r.Context()

	var req LoginRequest
	if err := h.validator.Decode(r, &req); err != nil {
		return nil, err
	}

	user, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, h.rejectLogin(ctx, "unknown email")
		}
		return nil, err
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		return nil, h.rejectLogin(ctx, "wrong password", slog.String("user_id", user.ID))
	}
	if !user.IsActive {
		return nil, h.rejectLogin(ctx, "inactive account", slog.String("user_id", user.ID))
	}

	pair, err := h.tokens.IssuePair(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	h.metrics.RecordLogin(ctx, loginSuccess)
	h.logger.InfoContext(ctx, "user signed in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)))

	return &Result{
		Status:   http.StatusOK,
		Body:     LoginResponse{TokenPair: pair, User: userView(user)},
		Resource: Resource{ID: user.ID},
		Actor:    user.ID,
	}, nil
}

func (h *AuthHandler) rejectLogin(ctx context.Context, reason string, attrs ...slog.Attr) error {
	h.metrics.RecordLogin(ctx, loginRejected)
	h.logger.LogAttrs(ctx, slog.LevelWarn, "login rejected",
		append([]slog.Attr{slog.String("reason", reason)}, attrs...)...)
	return errBadCredentials
}

// Refresh handles POST /api/auth/refresh. The identity is looked up again so
// a deactivated account cannot keep refreshing.
func (h *AuthHandler) Refresh(r *http.Request) (*Result, error) {
	ctx := r.Context()

	var req RefreshRequest
	if err := h.validator.Decode(r, &req); err != nil {
		return nil, err
	}

	claims, err := h.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, apierrors.ErrUnauthenticated
	}
	identity, err := h.users.FindIdentity(ctx, claims.ID)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, apierrors.ErrUnauthenticated
		}
		return nil, err
	}
	if !identity.IsActive {
		return nil, apierrors.ErrUnauthenticated
	}

	pair, err := h.tokens.IssuePair(identity.ID, identity.Role)
	if err != nil {
		return nil, err
	}
	return OK(pair), nil
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(r *http.Request) (*Result, error) {
	identity, ok := access.IdentityFrom(r.Context())
	if !ok {
		return nil, apierrors.ErrUnauthenticated
	}
	return OK(identity), nil
}

func userView(u *domain.User) UserView {
	perms := u.Permissions.Clone()
	if perms == nil {
		perms = domain.ModuleSet{}
	}
	return UserView{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: perms,
	}
}
