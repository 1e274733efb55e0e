package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicapi/internal/shared/testutil"
)

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{
			name:       "context deadline exceeded",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:       "unauthenticated",
			err:        ErrUnauthenticated,
			wantStatus: http.StatusUnauthorized,
			wantType:   TypeUnauthenticated,
			wantCode:   CodeUnauthenticated,
		},
		{
			name:       "wrapped unauthenticated",
			err:        fmt.Errorf("verify token: %w", ErrUnauthenticated),
			wantStatus: http.StatusUnauthorized,
			wantType:   TypeUnauthenticated,
			wantCode:   CodeUnauthenticated,
		},
		{
			name:       "license inactive",
			err:        ErrLicenseInactive,
			wantStatus: http.StatusForbidden,
			wantType:   TypeLicenseInactive,
			wantCode:   CodeLicenseInactive,
		},
		{
			name:       "module not licensed",
			err:        ModuleNotLicensed("billing"),
			wantStatus: http.StatusForbidden,
			wantType:   TypeModuleNotLicensed,
			wantCode:   CodeModuleNotLicensed,
		},
		{
			name:       "insufficient permission",
			err:        InsufficientPermission("billing"),
			wantStatus: http.StatusForbidden,
			wantType:   TypeInsufficientPermission,
			wantCode:   CodeInsufficientPermission,
		},
		{
			name:       "role forbidden",
			err:        ErrForbidden,
			wantStatus: http.StatusForbidden,
			wantType:   TypeForbidden,
			wantCode:   CodeForbidden,
		},
		{
			name:       "app not found",
			err:        NewNotFoundError("patients record p1 not found", nil),
			wantStatus: http.StatusNotFound,
			wantType:   TypeNotFound,
		},
		{
			name:       "app conflict",
			err:        NewConflictError("user with this email already exists", nil),
			wantStatus: http.StatusConflict,
			wantType:   TypeConflict,
		},
		{
			name:       "storage fault is opaque",
			err:        NewStorageError("find user", fmt.Errorf("connection refused")),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
		{
			name:       "plain error containing forbidden is still internal",
			err:        fmt.Errorf("upstream forbidden"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			handler := NewErrorHandler(logger, false)

			req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
			rec := httptest.NewRecorder()

			handler.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, "/api/patients", body["instance"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error_code"])
			}
			assert.NotContains(t, body, "stack")
		})
	}
}

func TestErrorHandler_HandleErrorNil(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	eh := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	eh.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, 0, rec.Body.Len())
	assert.Equal(t, 0, handler.Count())
}

func TestErrorHandler_LogLevels(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	eh := NewErrorHandler(logger, false)
	req := httptest.NewRequest(http.MethodGet, "/api/billing", nil)

	eh.HandleError(httptest.NewRecorder(), req, ErrForbidden)
	testutil.AssertNoErrors(t, logs)

	eh.HandleError(httptest.NewRecorder(), req, fmt.Errorf("boom"))
	testutil.AssertLogContains(t, logs, slog.LevelError, "request failed")
}

func TestErrorHandler_LogsErrorContext(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	eh := NewErrorHandler(logger, false)

	err := NewStorageError("find patients", fmt.Errorf("connection reset")).WithContext("collection", "patients")
	rec := httptest.NewRecorder()
	eh.HandleError(rec, httptest.NewRequest(http.MethodGet, "/api/patients", nil), err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	testutil.AssertLogAttr(t, logs, "collection", "patients")
}

func TestErrorHandler_ModuleDetails(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	eh := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	eh.HandleError(rec, httptest.NewRequest(http.MethodGet, "/api/billing", nil), ModuleNotLicensed("billing"))

	var body struct {
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "billing", body.Details["module"])
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	eh := NewErrorHandler(logger, true)

	rec := httptest.NewRecorder()
	eh.HandlePanic(rec, httptest.NewRequest(http.MethodPost, "/api/patients", nil), "nil map")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "nil map", body["panic"])
	assert.True(t, logs.ContainsMessage("panic recovered"))
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	eh := NewErrorHandler(logger, false)

	rec := httptest.NewRecorder()
	eh.NotFound(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	eh.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPatch, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "PATCH")
}
