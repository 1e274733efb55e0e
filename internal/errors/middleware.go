package errors

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// maxLoggedBody bounds the request body captured for error logging
const maxLoggedBody = 1024 * 1024

var sensitiveFields = map[string]struct{}{
	"password":     {},
	"passwordhash": {},
	"token":        {},
	"accesstoken":  {},
	"refreshtoken": {},
	"secret":       {},
	"licensekey":   {},
	"license_key":  {},
}

// ErrorMiddleware logs failed requests together with their redacted body.
// Panics are left to the recoverer further out in the chain.
type ErrorMiddleware struct {
	logger *slog.Logger
}

// NewErrorMiddleware creates a new error logging middleware
func NewErrorMiddleware(logger *slog.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{
		logger: logger.With(slog.String("component", "error_middleware")),
	}
}

// Handler returns the middleware handler function
func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var requestBody []byte
		if r.Body != nil && r.ContentLength > 0 && r.ContentLength < maxLoggedBody {
			requestBody, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		start := time.Now()
		next.ServeHTTP(ww, r)

		if ww.Status() >= http.StatusBadRequest {
			m.logFailure(r, ww, requestBody, time.Since(start))
		}
	})
}

func (m *ErrorMiddleware) logFailure(r *http.Request, ww middleware.WrapResponseWriter, requestBody []byte, duration time.Duration) {
	status := ww.Status()
	logLevel := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		logLevel = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}

	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", r.URL.RawQuery))
	}

	if len(requestBody) > 0 {
		bodyStr := sanitizeRequestBody(requestBody)
		if len(bodyStr) > 500 {
			bodyStr = bodyStr[:500] + "..."
		}
		attrs = append(attrs, slog.String("request_body", bodyStr))
	}

	m.logger.LogAttrs(r.Context(), logLevel, "request failed", attrs...)
}

// sanitizeRequestBody removes credentials and license keys from a JSON body before logging
func sanitizeRequestBody(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	redact(data)
	sanitized, _ := json.Marshal(data)
	return string(sanitized)
}

func redact(data map[string]interface{}) {
	for key, value := range data {
		if _, ok := sensitiveFields[strings.ToLower(key)]; ok {
			data[key] = "[REDACTED]"
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			redact(nested)
		}
	}
}
